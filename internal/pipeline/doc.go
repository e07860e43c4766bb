// Package pipeline compresses files: the per-request orchestrator
// (Compressor), the batch runner with bounded concurrency, the --analyze
// duration report and the JSON run report.
//
//   - Compressor.Compress: plan → workspace → quality search, bitrate
//     estimate or single encode → rename into place (compress.go)
//   - Run: single file or directory batch via errgroup (runner.go)
//   - Discover: recursive media walk, skipping previous outputs (discover.go)
//   - Analyze: duration strategy table (analyze.go)
//   - WriteReport: atomic JSON report (report.go)
package pipeline
