package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into request, search, process, behavior, display, and utility.
// Negated flags (e.g. --no-resize-fallback) are applied after Parse so Config defaults hold unless set.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses args (without the program name) into cfg. A --config
// file, when given, is loaded first so flags override file values. On
// --help or --version it prints and exits. On error it returns non-nil
// (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config, args []string, version string) error {
	if path := findConfigArg(args); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return err
		}
	}

	fs := flag.NewFlagSet("sizefit", flag.ContinueOnError)
	fs.Usage = func() { printUsage(version) }

	// Negated/override flags: we capture bools then apply to cfg after Parse,
	// so that defaults from DefaultConfig() hold unless the user passes the flag.
	var negated negatedFlags

	defineRequestFlags(fs, cfg)
	defineSearchFlags(fs, cfg, &negated)
	defineProcessFlags(fs, cfg)
	defineBehaviorFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(args); err != nil {
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "sizefit v"+version)
		os.Exit(0)
	}

	return parsePositionalArgs(fs, cfg)
}

// negatedFlags holds boolean flags that are applied after Parse.
type negatedFlags struct {
	noResizeFallback bool
	forceColor       bool
	noColor          bool
	showVersion      bool
	showHelp         bool
	configPath       string // consumed by findConfigArg; registered so Parse accepts it
}

// defineRequestFlags registers the per-request shape: target, kind, codecs, dimensions.
func defineRequestFlags(fs *flag.FlagSet, cfg *Config) {
	fs.Var(&sizeValue{&cfg.TargetSize}, "target", "Target output size (e.g. 1MiB, 20MB; bare number = MiB)")
	fs.Var(&sizeValue{&cfg.TargetSize}, "t", "Same as --target")
	fs.Var(&kindValue{&cfg.Kind}, "kind", "Media kind: auto | image | video | audio")
	fs.Var(&kindValue{&cfg.Kind}, "k", "Same as --kind")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "Image quality 1-100 (no target)")
	fs.IntVar(&cfg.Quality, "q", cfg.Quality, "Same as --quality")
	fs.Var(&bitrateValue{p: &cfg.VideoBitrate}, "video-bitrate", "Video bitrate (no target), e.g. 1000k")
	fs.Var(&bitrateValue{p: &cfg.AudioBitrate}, "audio-bitrate", "Audio bitrate, e.g. 128k")
	fs.StringVar(&cfg.VideoCodec, "vcodec", cfg.VideoCodec, "Video codec (ffmpeg encoder name)")
	fs.StringVar(&cfg.AudioCodec, "acodec", cfg.AudioCodec, "Audio codec (ffmpeg encoder name)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Resize width (0 keeps source)")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Resize height (0 keeps source)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Output frame rate (0 keeps source)")
	fs.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Audio sample rate in Hz")
	fs.IntVar(&cfg.Channels, "channels", cfg.Channels, "Audio channel count")
}

// defineSearchFlags registers tolerance, attempt bounds, policy, overhead and floors.
func defineSearchFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Relative tolerance around target (0-1)")
	fs.Int64Var(&cfg.ToleranceBytes, "tolerance-bytes", cfg.ToleranceBytes, "Fixed byte tolerance (overrides --tolerance)")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum quality probes per search")
	fs.Var(&policyValue{&cfg.Policy}, "policy", "Image search policy: never-exceed | closest")
	fs.BoolVar(&n.noResizeFallback, "no-resize-fallback", false, "Do not downscale when quality 1 is still too large")
	fs.IntVar(&cfg.ResizeFallbackPercent, "resize-percent", cfg.ResizeFallbackPercent, "Downscale percent for the resize fallback")
	fs.Var(&bitrateValue{p: &cfg.VideoOverhead, zeroOK: true}, "video-overhead", "Bitrate reserved for audio/muxing in video targets")
}

// defineProcessFlags registers timeouts, concurrency, and binary paths.
func defineProcessFlags(fs *flag.FlagSet, cfg *Config) {
	fs.DurationVar(&cfg.InvokeTimeout, "timeout", cfg.InvokeTimeout, "Per-invocation encoder timeout")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "Grace between SIGTERM and SIGKILL")
	fs.IntVar(&cfg.Jobs, "jobs", cfg.Jobs, "Concurrent requests in directory mode")
	fs.IntVar(&cfg.Jobs, "j", cfg.Jobs, "Same as --jobs")
	fs.StringVar(&cfg.FFmpegBin, "ffmpeg", cfg.FFmpegBin, "ffmpeg binary")
	fs.StringVar(&cfg.FFprobeBin, "ffprobe", cfg.FFprobeBin, "ffprobe binary")
	fs.StringVar(&cfg.MagickBin, "magick", cfg.MagickBin, "ImageMagick binary")
}

// defineBehaviorFlags registers force, analyze, report, metrics.
func defineBehaviorFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.Force, "force", false, "Overwrite existing output files")
	fs.BoolVar(&cfg.Force, "f", false, "Same as --force")
	fs.BoolVar(&cfg.Analyze, "analyze", false, "Probe durations only; do not encode")
	fs.BoolVar(&cfg.Analyze, "a", false, "Same as --analyze")
	fs.StringVar(&cfg.ReportFile, "report", cfg.ReportFile, "Write JSON results to file")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to file at exit")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug | info | warn | error")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append JSON logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
}

// defineUtilityFlags registers --config, --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.StringVar(&n.configPath, "config", "", "YAML config file (loaded before flags)")
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noResizeFallback {
		cfg.ResizeFallback = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
}

// parsePositionalArgs sets Input and (optionally) Output when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	switch len(args) {
	case 1:
		cfg.Input = args[0]
	case 2:
		cfg.Input = args[0]
		cfg.Output = args[1]
	default:
		return fmt.Errorf("need <input> and optional <output>")
	}
	return nil
}

// findConfigArg returns the value of --config / -config from args without
// running the full parser, so the file can seed flag defaults.
func findConfigArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		for _, prefix := range []string{"--config", "-config"} {
			if a == prefix && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(a, prefix+"="); ok {
				return v
			}
		}
	}
	return ""
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 30 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "sizefit v" + version + " - fit media files to a target size"},
		{"", ""},
		{"  sizefit [OPTIONS] <input> [output]", ""},
		{"", ""},
		{"Request", ""},
		{"  -t, --target <size>", "Target size (1MiB, 20MB; bare number = MiB)"},
		{"  -k, --kind <kind>", "auto | image | video | audio (default: auto)"},
		{"  -q, --quality <1-100>", "Image quality without target (default: 85)"},
		{"  --video-bitrate <rate>", "Video bitrate without target (default: 1000k)"},
		{"  --audio-bitrate <rate>", "Audio bitrate (default: 128k)"},
		{"  --vcodec <name>", "Video encoder (default: libx264)"},
		{"  --acodec <name>", "Audio encoder (default: aac)"},
		{"  --width, --height <px>", "Resize output"},
		{"  --fps <n>", "Output frame rate"},
		{"  --sample-rate <hz>", "Audio sample rate (default: 44100)"},
		{"  --channels <n>", "Audio channels (default: 2)"},
		{"", ""},
		{"Search", ""},
		{"  --tolerance <ratio>", "Accepted deviation from target (default: 0.05)"},
		{"  --tolerance-bytes <n>", "Fixed byte tolerance (overrides ratio)"},
		{"  --max-attempts <n>", "Quality probes per search (default: 10)"},
		{"  --policy <name>", "never-exceed | closest (default: never-exceed)"},
		{"  --no-resize-fallback", "Do not downscale when quality 1 is too big"},
		{"  --resize-percent <n>", "Downscale percent for fallback (default: 50)"},
		{"  --video-overhead <rate>", "Reserved audio/mux bitrate (default: 128k)"},
		{"", ""},
		{"Process", ""},
		{"  --timeout <dur>", "Per-invocation timeout (default: 30m)"},
		{"  --kill-grace <dur>", "SIGTERM to SIGKILL grace (default: 2s)"},
		{"  -j, --jobs <n>", "Parallel requests for directories (default: 1)"},
		{"  --ffmpeg, --ffprobe, --magick", "Binary paths"},
		{"", ""},
		{"Output & behavior", ""},
		{"  -f, --force", "Overwrite existing output files"},
		{"  -a, --analyze", "Probe durations only"},
		{"  --report <path>", "Write JSON results"},
		{"  --metrics-file <path>", "Write Prometheus metrics at exit"},
		{"  --config <path>", "YAML config file"},
		{"", ""},
		{"Display", ""},
		{"  --color, --no-color", "Force or disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"  --log-level <level>", "debug | info | warn | error"},
		{"  -l, --log <path>", "Append JSON logs to file"},
		{"", ""},
		{"Utility", ""},
		{"  -c, --check", "System diagnostics (ffmpeg, ffprobe, magick)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters so we can use enum and unit types with flag.Var.

type kindValue struct{ p *MediaKind }

func (k *kindValue) String() string {
	if k.p == nil {
		return ""
	}
	return string(*k.p)
}
func (k *kindValue) Set(s string) error {
	switch v := MediaKind(strings.ToLower(s)); v {
	case KindAuto, KindImage, KindVideo, KindAudio:
		*k.p = v
	default:
		return fmt.Errorf("invalid kind %q (use auto, image, video or audio)", s)
	}
	return nil
}

type policyValue struct{ p *SearchPolicy }

func (v *policyValue) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}
func (v *policyValue) Set(s string) error {
	switch p := SearchPolicy(strings.ToLower(s)); p {
	case PolicyNeverExceed, PolicyClosest:
		*v.p = p
	default:
		return fmt.Errorf("invalid policy %q (use never-exceed or closest)", s)
	}
	return nil
}

type sizeValue struct{ p *int64 }

func (v *sizeValue) String() string {
	if v.p == nil || *v.p == 0 {
		return ""
	}
	return fmt.Sprint(*v.p)
}
func (v *sizeValue) Set(s string) error {
	n, err := ParseSize(s)
	if err != nil {
		return err
	}
	*v.p = n
	return nil
}

type bitrateValue struct {
	p      *int64
	zeroOK bool // overhead values may be disabled with "0"
}

func (v *bitrateValue) String() string {
	if v.p == nil {
		return ""
	}
	return fmt.Sprint(*v.p)
}
func (v *bitrateValue) Set(s string) error {
	if v.zeroOK && (s == "0" || s == "0k") {
		*v.p = 0
		return nil
	}
	n, err := ParseBitrate(s)
	if err != nil {
		return err
	}
	*v.p = n
	return nil
}
