package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/display"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/naming"
	"github.com/backmassage/sizefit/internal/probe"
	"github.com/backmassage/sizefit/internal/term"
)

// fileRow holds the probed per-file data for the analysis table.
type fileRow struct {
	Name     string
	Kind     config.MediaKind
	Size     int64
	Seconds  float64
	Strategy string // Empty when probing failed or was not needed.
	Problem  string
}

// flag classifies a row: "" (container duration or image), "fallback"
// (a later strategy answered) or "failed".
func (r fileRow) flag() string {
	switch {
	case r.Problem != "":
		return "failed"
	case r.Strategy != "" && r.Strategy != probe.StrategyContainer:
		return "fallback"
	}
	return ""
}

// Analyze probes cfg.Input (a file or every media file below a directory)
// and prints a table of kind, size, duration and the strategy that produced
// the duration. Images are listed without a duration.
func Analyze(ctx context.Context, cfg *config.Config, log *logging.Logger, prober DurationProber, out io.Writer) error {
	files, err := analyzeTargets(cfg.Input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Warn("No media files found in %s", cfg.Input)
		return nil
	}

	total := len(files)
	log.Info("Analyzing %d files in %s …", total, cfg.Input)

	isTTY := out == os.Stdout && term.IsTerminal(os.Stdout)
	rows := make([]fileRow, 0, total)
	for i, path := range files {
		if ctx.Err() != nil {
			if isTTY {
				clearProgress(out)
			}
			log.Warn("Interrupted")
			return failure.New(failure.Cancelled, "analyze", ctx.Err())
		}
		if isTTY {
			printProgress(out, i+1, total, filepath.Base(path))
		}
		rows = append(rows, analyzeFile(ctx, cfg, prober, path))
	}
	if isTTY {
		clearProgress(out)
	}

	printAnalysisTable(out, rows)
	printAnalysisSummary(log, rows)
	return nil
}

func analyzeTargets(input string) ([]string, error) {
	fi, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if !fi.IsDir() {
		return []string{input}, nil
	}
	files, err := Discover(input)
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}
	return files, nil
}

func analyzeFile(ctx context.Context, cfg *config.Config, prober DurationProber, path string) fileRow {
	row := fileRow{Name: filepath.Base(path), Kind: cfg.Kind}
	if fi, err := os.Stat(path); err == nil {
		row.Size = fi.Size()
	}
	if row.Kind == config.KindAuto {
		kind, ok := naming.DetectKind(path)
		if !ok {
			row.Problem = "unknown media kind"
			return row
		}
		row.Kind = kind
	}
	if row.Kind == config.KindImage {
		return row
	}
	d, err := prober.ProbeDuration(ctx, path, row.Kind)
	if err != nil {
		row.Problem = err.Error()
		return row
	}
	row.Seconds, row.Strategy = d.Seconds, d.Strategy
	return row
}

func printAnalysisTable(out io.Writer, rows []fileRow) {
	nameW := len("File")
	kindW := len("Kind")
	sizeW := len("Size")
	durW := len("Duration")
	stratW := len("Strategy")

	for _, r := range rows {
		nameW = max(nameW, len(r.Name))
		kindW = max(kindW, len(r.Kind))
		sizeW = max(sizeW, len(display.FormatBytes(r.Size)))
		durW = max(durW, len(durationCell(r)))
		stratW = max(stratW, len(strategyCell(r)))
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %-*s  %-*s",
		nameW, "File",
		kindW, "Kind",
		sizeW, "Size",
		durW, "Duration",
		stratW, "Strategy",
	)
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, "  "+strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}
		flag := r.flag()
		// Pad the plain text first, then wrap in ANSI color, so escape
		// bytes do not count toward the column width.
		fmt.Fprintf(out, "  %-*s  %-*s  %-*s  %s  %s  %s\n",
			nameW, name,
			kindW, r.Kind,
			sizeW, display.FormatBytes(r.Size),
			colorPad(durationCell(r), durW, flag),
			colorPad(strategyCell(r), stratW, flag),
			formatFlag(flag),
		)
	}
	fmt.Fprintln(out)
}

func printAnalysisSummary(log *logging.Logger, rows []fileRow) {
	byStrategy := make(map[string]int)
	var failed, fallback int
	var problems []string
	for _, r := range rows {
		switch r.flag() {
		case "failed":
			failed++
			problems = append(problems, r.Name+": "+r.Problem)
		case "fallback":
			fallback++
		}
		if r.Strategy != "" {
			byStrategy[r.Strategy]++
		}
	}

	log.Info("Analyzed %d files", len(rows))
	names := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Info("  %-9s %d", name+":", byStrategy[name])
	}
	if fallback > 0 {
		log.Warn("  %d file(s) needed a fallback duration strategy [*]", fallback)
	}
	if failed > 0 {
		log.Error("  %d file(s) without a usable duration [!]", failed)
		for _, p := range problems {
			log.Debug("    %s", p)
		}
	}
	if fallback == 0 && failed == 0 {
		log.Success("  All durations read from the container")
	}
}

func durationCell(r fileRow) string {
	switch {
	case r.Problem != "":
		return "unavailable"
	case r.Kind == config.KindImage:
		return "-"
	}
	return display.FormatSeconds(r.Seconds)
}

func strategyCell(r fileRow) string {
	if r.Strategy == "" {
		return "-"
	}
	return r.Strategy
}

func formatFlag(flag string) string {
	switch flag {
	case "failed":
		return term.Red + "[!]" + term.NC
	case "fallback":
		return term.Yellow + "[*]" + term.NC
	default:
		return ""
	}
}

// colorPad pads a plain string to width, then wraps in ANSI color.
func colorPad(s string, width int, flag string) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch flag {
	case "failed":
		return term.Red + padded + term.NC
	case "fallback":
		return term.Yellow + padded + term.NC
	default:
		return padded
	}
}

// printProgress shows a live probe counter as an inline \r-overwritten
// line. Only called on a TTY.
func printProgress(out io.Writer, current, total int, name string) {
	pct := current * 100 / total
	status := fmt.Sprintf("  Probing [%d/%d] %d%% ", current, total, pct)
	const maxName = 40
	if len(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	status += name
	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(out, "\r%s", status)
}

func clearProgress(out io.Writer) {
	fmt.Fprintf(out, "\r%s\r", strings.Repeat(" ", 80))
}
