package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/backmassage/sizefit/internal/config"
	"github.com/backmassage/sizefit/internal/encoder"
	"github.com/backmassage/sizefit/internal/failure"
	"github.com/backmassage/sizefit/internal/logging"
	"github.com/backmassage/sizefit/internal/probe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- Fakes ---

// fakeEncoder writes a file of size(job) bytes instead of encoding.
type fakeEncoder struct {
	mu   sync.Mutex
	size func(p encoder.Params) int64
	err  error
	jobs []encoder.Job
}

func (f *fakeEncoder) Invoke(ctx context.Context, job encoder.Job) (encoder.Output, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.err != nil {
		return encoder.Output{}, f.err
	}
	n := f.size(job.Params)
	if err := os.WriteFile(job.Output, make([]byte, n), 0o644); err != nil {
		return encoder.Output{}, err
	}
	return encoder.Output{Path: job.Output, Size: n, Elapsed: time.Millisecond}, nil
}

func (f *fakeEncoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeProber struct {
	est probe.DurationEstimate
	err error
}

func (f fakeProber) ProbeDuration(context.Context, string, config.MediaKind) (probe.DurationEstimate, error) {
	return f.est, f.err
}

func testCompressor(t *testing.T, enc Encoder, prober DurationProber) (*Compressor, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	return &Compressor{Config: &cfg, Log: logging.Nop(), Encoder: enc, Prober: prober}, &cfg
}

func qualityLinear(p encoder.Params) int64 { return int64(p.Quality) * 100_000 }

// constantBitrate models an encoder that hits the requested bitrates exactly.
func constantBitrate(seconds float64) func(encoder.Params) int64 {
	return func(p encoder.Params) int64 {
		bps := p.AudioBitrate
		if p.Kind == config.KindVideo {
			bps += p.VideoBitrate
		}
		return int64(float64(bps) * seconds / 8)
	}
}

func request(cfg *config.Config, input string) Request {
	r := Request{
		Input: input, Kind: config.KindAuto,
		VideoCodec: cfg.VideoCodec, AudioCodec: cfg.AudioCodec,
		Quality: cfg.Quality, VideoBitrate: cfg.VideoBitrate, AudioBitrate: cfg.AudioBitrate,
		SampleRate: cfg.SampleRate, Channels: cfg.Channels,
	}
	return r
}

func assertNoWorkspace(t *testing.T, dir string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(dir, WorkspacePrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, left, "workspace must be removed")
}

// --- Compressor tests ---

func TestCompress_ImageQualitySearch(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "photo.jpg")
	enc := &fakeEncoder{size: qualityLinear}
	c, cfg := testCompressor(t, enc, nil)

	req := request(cfg, in)
	req.TargetSize = 1_000_000
	res, err := c.Compress(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "photo.compressed.jpg"), res.Output)
	assert.Equal(t, "quality-search", res.Mode)
	assert.Equal(t, "quality", res.ParamKind)
	assert.Equal(t, int64(10), res.Param)
	assert.Equal(t, int64(1_000_000), res.Size)
	assert.Equal(t, 6, res.Invocations)
	assert.Len(t, res.Attempts, 6)
	assert.NotEmpty(t, res.RequestID)

	fi, err := os.Stat(res.Output)
	require.NoError(t, err)
	assert.Equal(t, res.Size, fi.Size())
	assertNoWorkspace(t, dir)
}

func TestCompress_ResizeFallback(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "huge.jpg")
	enc := &fakeEncoder{size: func(p encoder.Params) int64 {
		if p.ResizePercent > 0 {
			return int64(p.Quality) * 10_000
		}
		return 5_000_000 + int64(p.Quality)*1_000
	}}
	c, cfg := testCompressor(t, enc, nil)

	req := request(cfg, in)
	req.TargetSize = 1_000_000
	res, err := c.Compress(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Resized)
	assert.Equal(t, int64(97), res.Param)
	assert.Equal(t, 11, res.Invocations)
	assert.Equal(t, 50, enc.jobs[len(enc.jobs)-1].Params.ResizePercent)
	assert.Zero(t, enc.jobs[5].Params.ResizePercent)
	assertNoWorkspace(t, dir)
}

func TestCompress_UnachievableKeepsBest(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "huge.jpg")
	enc := &fakeEncoder{size: func(p encoder.Params) int64 { return 5_000_000 + int64(p.Quality)*1_000 }}
	c, cfg := testCompressor(t, enc, nil)
	cfg.ResizeFallback = false

	req := request(cfg, in)
	req.TargetSize = 1_000_000
	res, err := c.Compress(context.Background(), req)
	require.Error(t, err)
	assert.True(t, failure.IsWarning(err))
	require.NotNil(t, res, "a warning still carries the result")
	assert.Equal(t, int64(1), res.Param)
	assert.Equal(t, int64(5_001_000), res.Size)
	assert.NotEmpty(t, res.Warning)
	assert.FileExists(t, res.Output)
}

func TestCompress_ImageFixedQuality(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "photo.png")
	enc := &fakeEncoder{size: qualityLinear}
	c, cfg := testCompressor(t, enc, nil)

	res, err := c.Compress(context.Background(), request(cfg, in))
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.Mode)
	assert.Equal(t, int64(85), res.Param)
	assert.Equal(t, 1, res.Invocations)
}

func TestCompress_VideoBitrateEstimate(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "clip.mov")
	enc := &fakeEncoder{size: constantBitrate(120)}
	c, cfg := testCompressor(t, enc, fakeProber{est: probe.DurationEstimate{Seconds: 120, Strategy: probe.StrategyFrames}})

	req := request(cfg, in)
	req.TargetSize = 20 << 20
	res, err := c.Compress(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1_270_101), res.Param)
	assert.Equal(t, 1, res.Invocations)
	require.NotNil(t, res.Duration)
	assert.Equal(t, probe.StrategyFrames, res.Duration.Strategy)
	assert.Equal(t, filepath.Join(dir, "clip.compressed.mp4"), res.Output)
	assert.False(t, enc.jobs[0].Params.AudioCopy)
	assertNoWorkspace(t, dir)
}

func TestCompress_DurationUnavailable(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "stream.ts")
	enc := &fakeEncoder{size: constantBitrate(1)}
	c, cfg := testCompressor(t, enc, fakeProber{
		err: failure.Errorf(failure.DurationUnavailable, "probe", "container: no duration reported"),
	})

	req := request(cfg, in)
	req.TargetSize = 5 << 20
	res, err := c.Compress(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, failure.ErrDurationUnavailable)
	assert.Zero(t, enc.calls(), "no encode without a duration")
	assertNoWorkspace(t, dir)
}

func TestCompress_MP3ToAAC(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "song.mp3")
	enc := &fakeEncoder{size: constantBitrate(60)}
	c, cfg := testCompressor(t, enc, fakeProber{est: probe.DurationEstimate{Seconds: 60, Strategy: probe.StrategyTags}})

	req := request(cfg, in)
	req.Output = filepath.Join(dir, "song.small.mp3")
	req.TargetSize = 1 << 20
	res, err := c.Compress(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "song.small.m4a"), res.Output)
	assert.True(t, res.ContainerSwitch)
	for _, j := range enc.jobs {
		assert.Equal(t, ".m4a", filepath.Ext(j.Output))
	}
	assert.NoFileExists(t, req.Output)
}

func TestCompress_ExistingOutput(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "photo.jpg")
	existing := touch(t, dir, "photo.compressed.jpg")
	enc := &fakeEncoder{size: qualityLinear}
	c, cfg := testCompressor(t, enc, nil)
	cfg.Quality = 10

	_, err := c.Compress(context.Background(), request(cfg, in))
	assert.ErrorIs(t, err, failure.ErrInvalidRequest)
	assert.Zero(t, enc.calls())

	cfg.Force = true
	res, err := c.Compress(context.Background(), request(cfg, in))
	require.NoError(t, err)
	assert.Equal(t, existing, res.Output)
	fi, _ := os.Stat(existing)
	assert.Equal(t, int64(1_000_000), fi.Size())
}

func TestCompress_MissingInput(t *testing.T) {
	c, cfg := testCompressor(t, &fakeEncoder{size: qualityLinear}, nil)
	_, err := c.Compress(context.Background(), request(cfg, filepath.Join(t.TempDir(), "gone.jpg")))
	assert.ErrorIs(t, err, failure.ErrInvalidRequest)
}

func TestCompress_EncodeFailed(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "photo.jpg")
	enc := &fakeEncoder{err: &failure.Error{
		Kind: failure.EncodeFailed, Op: "encode", Param: "quality=50",
		Stderr: "magick: no decode delegate", Err: exec.ErrNotFound,
	}}
	c, cfg := testCompressor(t, enc, nil)

	req := request(cfg, in)
	req.TargetSize = 1000
	_, err := c.Compress(context.Background(), req)
	assert.ErrorIs(t, err, failure.ErrEncodeFailed)
	assert.Equal(t, 1, enc.calls(), "a failed encode is not retried")
	assert.NoFileExists(t, filepath.Join(dir, "photo.compressed.jpg"))
	assertNoWorkspace(t, dir)
}

// blockingEncoder leaves a partial file behind and waits for cancellation.
type blockingEncoder struct{ started chan struct{} }

func (b *blockingEncoder) Invoke(ctx context.Context, job encoder.Job) (encoder.Output, error) {
	_ = os.WriteFile(job.Output, []byte("partial"), 0o644)
	close(b.started)
	<-ctx.Done()
	return encoder.Output{}, failure.New(failure.Cancelled, "encode", ctx.Err())
}

func TestCompress_CancelledCleansUp(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "photo.jpg")
	enc := &blockingEncoder{started: make(chan struct{})}
	c, cfg := testCompressor(t, enc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-enc.started
		cancel()
	}()
	req := request(cfg, in)
	req.TargetSize = 1000
	res, err := c.Compress(ctx, req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, failure.ErrCancelled)
	assertNoWorkspace(t, dir)
	assert.NoFileExists(t, filepath.Join(dir, "photo.compressed.jpg"))
}

// --- Batch runner ---

func TestRun_BatchWithReport(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	touch(t, in, "a.jpg")
	touch(t, in, "a.png") // Same derived output as a.jpg.
	touch(t, in, "c.mp3")
	touch(t, in, "a.compressed.jpg") // Earlier output: skipped.
	touch(t, in, "notes.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(in, "sub"), 0o755))
	touch(t, filepath.Join(in, "sub"), "d.wav")

	enc := &fakeEncoder{size: func(p encoder.Params) int64 {
		if p.Kind == config.KindImage {
			return qualityLinear(p)
		}
		return constantBitrate(10)(p)
	}}
	c, cfg := testCompressor(t, enc, nil)
	cfg.Input = in
	cfg.Output = out
	cfg.Jobs = 2
	cfg.Quality = 10
	cfg.ReportFile = filepath.Join(out, "report.json")

	stats, err := Run(context.Background(), cfg, logging.Nop(), c)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 4, stats.Compressed)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 4, stats.Invocations)

	for _, name := range []string{"a.compressed.jpg", "a.compressed-2.jpg", "c.compressed.m4a", filepath.Join("sub", "d.compressed.m4a")} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	data, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Len(t, rep.Entries, 4)
	assert.Equal(t, 4, rep.Stats.Compressed)
	for _, e := range rep.Entries {
		require.NotNil(t, e.Result, e.Input)
		assert.NotEmpty(t, e.Result.Attempts)
	}
}

func TestRun_CancelledBatchReport(t *testing.T) {
	in := t.TempDir()
	touch(t, in, "a.jpg")
	touch(t, in, "b.mp3")

	enc := &fakeEncoder{size: qualityLinear}
	c, cfg := testCompressor(t, enc, nil)
	cfg.Input = in
	cfg.ReportFile = filepath.Join(t.TempDir(), "report.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := Run(ctx, cfg, logging.Nop(), c)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cancelled)
	assert.Zero(t, enc.calls())

	data, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(data, &rep))
	require.Len(t, rep.Entries, 2)
	for _, e := range rep.Entries {
		assert.NotEmpty(t, e.Input)
		assert.Nil(t, e.Result)
		assert.Equal(t, failure.Cancelled, e.ErrorKind, e.Input)
		assert.NotEmpty(t, e.Error)
	}
}

func TestRun_SingleFileFailureCounted(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, dir, "clip.mp4")
	c, cfg := testCompressor(t, &fakeEncoder{size: qualityLinear}, fakeProber{
		err: failure.Errorf(failure.DurationUnavailable, "probe", "nothing"),
	})
	cfg.Input = in
	cfg.TargetSize = 1 << 20

	stats, err := Run(context.Background(), cfg, logging.Nop(), c)
	require.NoError(t, err)
	assert.Equal(t, RunStats{Total: 1, Failed: 1}, stats)
}

func TestRun_MissingInput(t *testing.T) {
	c, cfg := testCompressor(t, &fakeEncoder{size: qualityLinear}, nil)
	cfg.Input = filepath.Join(t.TempDir(), "nope")
	_, err := Run(context.Background(), cfg, logging.Nop(), c)
	assert.Error(t, err)
}

// --- Discover tests ---

func TestDiscover_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "movie.mkv")
	touch(t, dir, "photo.jpg")
	touch(t, dir, "music.mp3")
	touch(t, dir, "readme.txt")
	touch(t, dir, "music.compressed.m4a")
	touch(t, dir, "photo.compressed-3.jpg")
	touch(t, dir, "my.compressed.holiday.jpg")

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"movie.mkv", "music.mp3", "my.compressed.holiday.jpg", "photo.jpg"}, basenames(files))
}

func TestDiscover_SkipsWorkspaces(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "main.mp4")
	ws := filepath.Join(dir, WorkspacePrefix+"0f8e")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	touch(t, ws, "attempt-01.mp4")

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.mp4"}, basenames(files))
}

func TestDiscover_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	touch(t, filepath.Join(dir, "b"), "2.wav")
	touch(t, filepath.Join(dir, "a"), "9.WAV")
	touch(t, dir, "z.PNG")

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

// --- Analyze ---

type pathProber map[string]probe.DurationEstimate

func (p pathProber) ProbeDuration(_ context.Context, path string, _ config.MediaKind) (probe.DurationEstimate, error) {
	if d, ok := p[filepath.Base(path)]; ok {
		return d, nil
	}
	return probe.DurationEstimate{}, failure.Errorf(failure.DurationUnavailable, "probe", "all strategies failed")
}

func TestAnalyze_Table(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	touch(t, dir, "b.mp3")
	touch(t, dir, "c.ts")
	touch(t, dir, "d.jpg")

	cfg := config.DefaultConfig()
	cfg.Input = dir
	var out bytes.Buffer
	err := Analyze(context.Background(), &cfg, logging.Nop(), pathProber{
		"a.mp4": {Seconds: 120, Strategy: probe.StrategyContainer},
		"b.mp3": {Seconds: 61.5, Strategy: probe.StrategyTags},
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6, out.String())
	assert.Contains(t, lines[0], "Strategy")
	assert.Contains(t, lines[2], "container")
	assert.Contains(t, lines[3], "tags")
	assert.Contains(t, lines[3], "[*]")
	assert.Contains(t, lines[4], "unavailable")
	assert.Contains(t, lines[4], "[!]")
	assert.Contains(t, lines[5], "image")
}

func TestAnalyze_Cancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	cfg := config.DefaultConfig()
	cfg.Input = dir
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Analyze(ctx, &cfg, logging.Nop(), pathProber{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, failure.ErrCancelled)
}

// --- RunStats tests ---

func TestRunStats_SpaceSaved(t *testing.T) {
	s := RunStats{TotalInputBytes: 1000, TotalOutputBytes: 600}
	if got := s.SpaceSaved(); got != 400 {
		t.Errorf("SpaceSaved: got %d, want 400", got)
	}

	s2 := RunStats{TotalInputBytes: 100, TotalOutputBytes: 150}
	if got := s2.SpaceSaved(); got != -50 {
		t.Errorf("SpaceSaved (negative): got %d, want -50", got)
	}
}

// --- Real encoder integration test ---

func TestCompress_RealFFmpeg(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available", bin)
		}
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=20:sample_rate=44100",
		"-ac", "2", "-y", src)
	gen.Stderr = os.Stderr
	require.NoError(t, gen.Run())

	cfg := config.DefaultConfig()
	cfg.Tolerance = 0.15
	c := NewCompressor(&cfg, logging.Nop())

	req := request(&cfg, src)
	req.TargetSize = 200 << 10
	res, err := c.Compress(context.Background(), req)
	if err != nil && !failure.IsWarning(err) {
		t.Fatalf("Compress: %v", err)
	}
	require.NotNil(t, res)
	t.Logf("size=%d bitrate=%d invocations=%d strategy=%s", res.Size, res.Param, res.Invocations, res.Duration.Strategy)
	assert.LessOrEqual(t, res.Invocations, 2)
	assert.Equal(t, ".m4a", filepath.Ext(res.Output))
	assertNoWorkspace(t, dir)
}

// --- Helpers ---

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return path
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
