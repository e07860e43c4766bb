// Package encoder builds encoder command lines and runs them.
//
// [Build] owns the flag syntax for each media kind: ffmpeg for video and
// audio, ImageMagick for still images. [Invoker] runs one command in its own
// process group, enforces a per-invocation timeout, tears the group down on
// timeout or cancellation, and reports the exact size of the produced file.
// Failures are *failure.Error values carrying the attempted parameter and
// the tail of the encoder's stderr.
package encoder
