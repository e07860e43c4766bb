// Package planner turns a compression request into a Plan and owns the two
// size-fitting algorithms that drive the encoder.
//
//   - Request, Plan, BuildPlan: validation, kind detection, output naming and
//     container substitution (planner.go)
//   - Attempt, History, Tolerance: append-only attempt record and best-attempt
//     selection shared by both algorithms (types.go)
//   - QualitySearch: bounded binary search over image quality 1-100 (quality.go)
//   - BitrateEstimator: duration-based bitrate with one proportional
//     correction (estimation.go)
//
// Both algorithms talk to the encoder through the Oracle interface, so they
// can be exercised in tests without running ffmpeg or ImageMagick.
package planner
