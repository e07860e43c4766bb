// Package naming maps media files to kinds and output paths.
//
// It owns the extension tables (which files are images, video or audio),
// the default output path next to the input, the container substitution
// applied before audio encodes (AAC never lands in a .mp3 file), the
// container/codec compatibility check, and the in-run collision resolver
// used by batch mode.
package naming
