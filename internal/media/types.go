// Package media wraps the external media engine (ffmpeg/ffprobe). Edit
// requests are expressed as Descriptors and executed as subprocesses; the
// engine itself is treated as a black box.
package media

import (
	"time"
)

// Stream describes a single elementary stream of a media file.
type Stream struct {
	Index     int     `json:"index"`
	Type      string  `json:"type"` // "video", "audio", "subtitle", ...
	Codec     string  `json:"codec,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	Channels  int     `json:"channels,omitempty"`
}

// Metadata is the probed description of a media artifact.
type Metadata struct {
	DurationSeconds float64  `json:"duration_seconds"`
	SizeBytes       int64    `json:"size_bytes"`
	Streams         []Stream `json:"streams"`
}

func (m *Metadata) HasAudio() bool { return m.firstOfType("audio") != nil }

func (m *Metadata) HasVideo() bool { return m.firstOfType("video") != nil }

// FrameRate returns the frame rate of the first video stream, or 0.
func (m *Metadata) FrameRate() float64 {
	if s := m.firstOfType("video"); s != nil {
		return s.FrameRate
	}
	return 0
}

func (m *Metadata) firstOfType(t string) *Stream {
	if m == nil {
		return nil
	}
	for i := range m.Streams {
		if m.Streams[i].Type == t {
			return &m.Streams[i]
		}
	}
	return nil
}

// Opcode names an operation understood by the executor.
type Opcode string

const (
	OpTrim         Opcode = "trim"
	OpConcat       Opcode = "concat"
	OpSpeed        Opcode = "speed"
	OpVolume       Opcode = "volume"
	OpDrawText     Opcode = "drawtext"
	OpAudioInsert  Opcode = "audio_insert"
	OpMerge        Opcode = "merge"
	OpExtractAudio Opcode = "extract_audio"
	OpFilter       Opcode = "filter"
)

// Params is implemented by the typed parameter block of each opcode.
type Params interface {
	Opcode() Opcode
}

// Descriptor is a structured operation request for the executor.
type Descriptor struct {
	Op     Opcode
	Inputs []string
	Output string
	Params Params
}

// Result is what the executor returns for a successful invocation.
type Result struct {
	OutputPath string
	StderrTail string
	Duration   time.Duration
}

type TrimParams struct {
	Start      float64
	Duration   float64
	StreamCopy bool
}

func (TrimParams) Opcode() Opcode { return OpTrim }

// ConcatParams joins inputs in order without re-encoding.
type ConcatParams struct{}

func (ConcatParams) Opcode() Opcode { return OpConcat }

type SpeedParams struct {
	Factor   float64
	HasAudio bool
}

func (SpeedParams) Opcode() Opcode { return OpSpeed }

type VolumeParams struct {
	Factor float64
}

func (VolumeParams) Opcode() Opcode { return OpVolume }

// TextStyle controls how overlay text is drawn.
type TextStyle struct {
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FontFile  string `json:"font_file,omitempty"`
	BoxColor  string `json:"box_color,omitempty"`
}

// TextPosition holds ffmpeg drawtext x/y expressions.
type TextPosition struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type DrawTextParams struct {
	Text     string
	Style    TextStyle
	Position TextPosition
	Start    *float64
	End      *float64
}

func (DrawTextParams) Opcode() Opcode { return OpDrawText }

// InsertMode selects how inserted audio interacts with existing audio.
type InsertMode string

const (
	InsertMix       InsertMode = "mix"
	InsertOverwrite InsertMode = "overwrite"
	InsertPush      InsertMode = "push"
)

func (m InsertMode) Valid() bool {
	switch m {
	case InsertMix, InsertOverwrite, InsertPush:
		return true
	}
	return false
}

// AudioInsertParams expects Inputs = [base, source].
type AudioInsertParams struct {
	Mode           InsertMode
	Start          float64
	SourceDuration float64
	Volume         float64
	BaseHasAudio   bool
	BaseDuration   float64
}

func (AudioInsertParams) Opcode() Opcode { return OpAudioInsert }

// TransitionKind selects the boundary treatment between merged clips.
type TransitionKind string

const (
	TransitionNone      TransitionKind = "none"
	TransitionFade      TransitionKind = "fade"
	TransitionCrossfade TransitionKind = "crossfade"
)

// Transition describes how two merged clips meet.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	Style    string         `json:"style,omitempty"` // xfade transition name
	Duration float64        `json:"duration,omitempty"`
}

// MergeParams carries per-clip durations so boundary offsets can be placed.
type MergeParams struct {
	Transition Transition
	Durations  []float64
	HasAudio   bool
	Width      int
	Height     int
}

func (MergeParams) Opcode() Opcode { return OpMerge }

// FilterName selects a single-input video filter.
type FilterName string

const (
	FilterBrightness FilterName = "brightness"
	FilterContrast   FilterName = "contrast"
	FilterSaturation FilterName = "saturation"
	FilterBlur       FilterName = "blur"
	FilterSharpen    FilterName = "sharpen"
	FilterRotate     FilterName = "rotate"
)

// FilterParams applies one video filter. Value is the brightness offset,
// contrast or saturation factor, blur sigma, sharpen amount, or rotation
// in degrees.
type FilterParams struct {
	Name  FilterName
	Value float64
}

func (FilterParams) Opcode() Opcode { return OpFilter }

type ExtractAudioParams struct {
	Codec string
}

func (ExtractAudioParams) Opcode() Opcode { return OpExtractAudio }
