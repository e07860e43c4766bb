// Package probe inspects media with ffprobe and determines durations.
//
// [Probe] runs one ffprobe JSON call and [ParseJSON] turns the output into
// a [ProbeResult]. [Prober.ProbeDuration] walks an ordered chain of
// [Strategy] values (container metadata, frame counters, duration tags) and
// returns the first finite positive duration together with the name of the
// strategy that produced it. ffprobe runs at most once per call; strategies
// share the result through [Source].
package probe
