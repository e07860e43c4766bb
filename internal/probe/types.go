package probe

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64 // 0 when ffprobe reports none or "N/A".
	Size       int64
	BitRate    int64
	Tags       map[string]string
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	Width         int
	Height        int
	BitRate       int64
	AvgFrameRate  string // Rational, e.g. "30000/1001".
	RFrameRate    string
	NbFrames      int64
	Duration      float64
	IsAttachedPic bool
	Tags          map[string]string
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int64
	Duration   float64
	DurationTS int64
	TimeBase   string // Rational, e.g. "1/44100".
	Tags       map[string]string
}

// ProbeResult is the fully parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type ProbeResult struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
	AudioStreams []AudioStream
}

// PrimaryAudio returns the first audio stream, or nil.
func (p *ProbeResult) PrimaryAudio() *AudioStream {
	if len(p.AudioStreams) == 0 {
		return nil
	}
	return &p.AudioStreams[0]
}
