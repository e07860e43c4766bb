package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/display"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/naming"
	"github.com/backmassage/sizefit/internal/planner"
)

// Run is the top-level entry point. cfg.Input may be a file or a directory;
// directories are walked with Discover and their files compressed with up
// to cfg.Jobs requests in flight. Per-file failures are counted, not
// returned; the error is reserved for problems that stop the whole run
// (unreadable input, report write failure).
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger, comp *Compressor) (RunStats, error) {
	started := time.Now()
	fi, err := os.Stat(cfg.Input)
	if err != nil {
		return RunStats{}, fmt.Errorf("input: %w", err)
	}

	var reqs []Request
	if fi.IsDir() {
		files, err := Discover(cfg.Input)
		if err != nil {
			return RunStats{}, fmt.Errorf("file discovery failed: %w", err)
		}
		reqs = batchRequests(cfg, files)
	} else {
		reqs = []Request{planner.RequestFromConfig(cfg, cfg.Input, cfg.Output)}
	}

	col := &statsCollector{stats: RunStats{Total: len(reqs)}}
	entries := make([]ReportEntry, len(reqs))
	logBatchHeader(cfg, log, len(reqs))

	var g errgroup.Group
	g.SetLimit(cfg.Jobs)
	for i, req := range reqs {
		if ctx.Err() != nil {
			log.Warn("Interrupted")
			break
		}
		g.Go(func() error {
			log.Info("[%d/%d] %s", i+1, len(reqs), filepath.Base(req.Input))
			res, err := comp.Compress(ctx, req)
			col.add(res, err)
			entries[i] = newReportEntry(req, res, err)
			logResult(log, req, res, err)
			return nil
		})
	}
	_ = g.Wait()

	stats := col.snapshot()
	if ctx.Err() != nil {
		// Requests never started count as cancelled too.
		stats.Cancelled = stats.Total - stats.Compressed - stats.Failed
		for i := range entries {
			if entries[i].Input == "" {
				entries[i] = newReportEntry(reqs[i], nil, failure.New(failure.Cancelled, "run", ctx.Err()))
			}
		}
	}
	logSummary(log, &stats)

	if cfg.ReportFile != "" {
		if err := WriteReport(cfg.ReportFile, started, stats, entries); err != nil {
			return stats, fmt.Errorf("write report: %w", err)
		}
		log.Info("Report written to %s", cfg.ReportFile)
	}
	return stats, nil
}

// batchRequests builds one request per discovered file. When cfg.Output is
// set it is the output root and the input tree is mirrored under it.
// Colliding outputs get numbered suffixes.
func batchRequests(cfg *config.Config, files []string) []Request {
	resolver := naming.NewCollisionResolver()
	reqs := make([]Request, 0, len(files))
	for _, path := range files {
		kind := cfg.Kind
		if kind == config.KindAuto {
			kind, _ = naming.DetectKind(path)
		}
		out := naming.OutputPath(path, kind, cfg.AudioCodec)
		if cfg.Output != "" {
			if rel, err := filepath.Rel(cfg.Input, out); err == nil {
				out = filepath.Join(cfg.Output, rel)
			}
		}
		req := planner.RequestFromConfig(cfg, path, resolver.Resolve(path, out))
		req.Kind = kind
		reqs = append(reqs, req)
	}
	return reqs
}

// --- Logging helpers ---

func logBatchHeader(cfg *config.Config, log *logging.Logger, n int) {
	if n > 1 {
		log.Info("Found %d files (%d at a time)", n, cfg.Jobs)
	}
	if cfg.TargetSize > 0 {
		tol := fmt.Sprintf("%.1f%%", cfg.Tolerance*100)
		if cfg.ToleranceBytes > 0 {
			tol = display.FormatBytes(cfg.ToleranceBytes)
		}
		log.Info("Target: %s (tolerance %s, policy %s)", display.FormatBytes(cfg.TargetSize), tol, cfg.Policy)
	} else {
		log.Info("No target size: quality %d, video %s, audio %s",
			cfg.Quality, display.FormatBitrate(cfg.VideoBitrate), display.FormatBitrate(cfg.AudioBitrate))
	}
}

func logResult(log *logging.Logger, req Request, res *Result, err error) {
	name := filepath.Base(req.Input)
	if res == nil {
		var fe *failure.Error
		if failure.KindOf(err) == failure.Cancelled {
			log.Warn("%s: cancelled", name)
			return
		}
		log.Error("%s: %v", name, err)
		if errors.As(err, &fe) && fe.Stderr != "" {
			logStderr(log, fe.Stderr)
		}
		return
	}

	param := fmt.Sprintf("%s %d", res.ParamKind, res.Param)
	if res.ParamKind == "bitrate" {
		param = "bitrate " + display.FormatBitrate(res.Param)
	}
	delta := display.FormatTargetDelta(res.Size, res.Target)
	msg := fmt.Sprintf("%s -> %s: %s, %s, %s after %d encode(s) in %s",
		name, filepath.Base(res.Output), display.FormatBytes(res.Size), delta, param,
		res.Invocations, res.Elapsed.Round(time.Millisecond))
	if err != nil {
		log.Warn("%s", msg)
		return
	}
	log.Success("%s", msg)
}

func logStderr(log *logging.Logger, stderr string) {
	log.Error("Last encoder output:")
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	start := 0
	if len(lines) > 20 {
		start = len(lines) - 20
	}
	for _, l := range lines[start:] {
		log.Error("  %s", l)
	}
}

func logSummary(log *logging.Logger, stats *RunStats) {
	if stats.Total <= 1 {
		return
	}
	log.Info("==============================")
	log.Info("Done: %d compressed (%d outside tolerance), %d failed, %d cancelled",
		stats.Compressed, stats.Warned, stats.Failed, stats.Cancelled)
	log.Info("  Encoder invocations: %d", stats.Invocations)

	saved := stats.SpaceSaved()
	if saved >= 0 {
		log.Success("  Total space saved: %s (input %s -> output %s)",
			display.FormatBytes(saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	} else {
		log.Warn("  Total space saved: -%s (overall output is larger)",
			display.FormatBytes(-saved))
	}
}
