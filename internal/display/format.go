// Package display formats sizes, bitrates and durations for console output.
package display

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable IEC size ("512 B", "1.5 KiB", "700 MiB").
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatBytesWithSign prefixes with + or - for delta display (e.g. "- 1.2 MiB").
func FormatBytesWithSign(bytes int64) string {
	sign := ""
	if bytes > 0 {
		sign = "+ "
	} else if bytes < 0 {
		sign = "- "
		bytes = -bytes
	}
	return sign + FormatBytes(bytes)
}

// FormatBitrate returns an SI bitrate label for bits/sec (e.g. "128 kbps", "1.3 Mbps").
// The value is rounded to one decimal at the prefix it is shown with.
func FormatBitrate(bps int64) string {
	step := int64(1)
	for n := bps; n >= 1000; n /= 1000 {
		step *= 1000
	}
	if step > 1 {
		step /= 10
		bps = (bps + step/2) / step * step
	}
	v, prefix := humanize.ComputeSI(float64(bps))
	return humanize.FtoaWithDigits(v, 1) + " " + prefix + "bps"
}

// FormatTargetDelta describes size relative to target as a signed percentage
// ("-3.2% of target").
func FormatTargetDelta(size, target int64) string {
	if target <= 0 {
		return "no target"
	}
	pct := (float64(size) - float64(target)) / float64(target) * 100
	if math.Abs(pct) < 0.05 {
		return "on target"
	}
	return fmt.Sprintf("%+.1f%% of target", pct)
}

// FormatSeconds renders a media duration in seconds ("2m3.5s", "45.2s").
func FormatSeconds(s float64) string {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return "unknown"
	}
	return time.Duration(s * float64(time.Second)).Round(100 * time.Millisecond).String()
}
