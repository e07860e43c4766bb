// Command sizefit compresses images, video and audio to a target file size.
//
// It parses flags, validates configuration, and either runs system
// diagnostics (--check), the duration report (--analyze) or the
// compression pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/backmassage/sizefit/internal/check"
	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/display"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/metrics"
	"github.com/backmassage/sizefit/internal/naming"
	"github.com/backmassage/sizefit/internal/pipeline"
	"github.com/backmassage/sizefit/internal/probe"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:], version); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "sizefit: %v\n", err)
		return exitFailure
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sizefit: %v\n", err)
		return exitFailure
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sizefit: %v\n", err)
		return exitFailure
	}
	defer log.Close()

	// Phase 2: Logger available. All output goes through log from here on.
	display.PrintBanner(os.Stdout, version)
	defer writeMetrics(&cfg, log)

	if cfg.CheckOnly {
		if !check.RunCheck(&cfg, log) {
			return exitFailure
		}
		return exitOK
	}

	// Phase 3: Signal handling. SIGINT/SIGTERM cancel the context; running
	// encoders are terminated and their workspaces removed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("=== sizefit v%s (%s) ===", version, commit)
	log.Info("In:  %s", cfg.Input)
	if cfg.Output != "" {
		log.Info("Out: %s", cfg.Output)
	}

	if cfg.Analyze {
		if err := check.CheckProbe(&cfg); err != nil {
			log.Error("%v", err)
			return exitFailure
		}
		err := pipeline.Analyze(ctx, &cfg, log, probe.NewProber(cfg.FFprobeBin, log), os.Stdout)
		switch {
		case ctx.Err() != nil:
			log.Warn("Interrupted")
			return exitCancelled
		case err != nil:
			log.Error("%v", err)
			return exitFailure
		}
		return exitOK
	}

	// Fail fast if a tool needed for these inputs is unavailable.
	kinds, err := inputKinds(&cfg)
	if err != nil {
		log.Error("%v", err)
		return exitFailure
	}
	if err := check.CheckDeps(&cfg, kinds...); err != nil {
		log.Error("%v", err)
		return exitFailure
	}

	// Phase 4: Run pipeline (plan → probe → search/estimate → rename).
	stats, err := pipeline.Run(ctx, &cfg, log, pipeline.NewCompressor(&cfg, log))
	switch {
	case ctx.Err() != nil || stats.Cancelled > 0:
		log.Warn("Interrupted; partial outputs removed")
		return exitCancelled
	case err != nil:
		log.Error("%v", err)
		return exitFailure
	case stats.Failed > 0:
		return exitFailure
	}
	return exitOK
}

// inputKinds returns the media kinds the run will touch, so CheckDeps only
// demands the tools actually needed.
func inputKinds(cfg *config.Config) ([]config.MediaKind, error) {
	if cfg.Kind != config.KindAuto {
		return []config.MediaKind{cfg.Kind}, nil
	}
	fi, err := os.Stat(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("input not found: %s", cfg.Input)
	}
	paths := []string{cfg.Input}
	if fi.IsDir() {
		if paths, err = pipeline.Discover(cfg.Input); err != nil {
			return nil, err
		}
	}
	seen := make(map[config.MediaKind]bool)
	var kinds []config.MediaKind
	for _, p := range paths {
		if k, ok := naming.DetectKind(p); ok && !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func writeMetrics(cfg *config.Config, log *logging.Logger) {
	if cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn("Cannot write metrics: %v", err)
	}
}
