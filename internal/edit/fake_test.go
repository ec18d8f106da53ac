package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/kioskmedia/timeline-agent/internal/media"
)

// The fakes below model a media file as JSON describing which source spans
// make up its video and audio tracks, so tests can check durations and
// content order without a real engine.

type segment struct {
	Src  string  `json:"src"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

func (s segment) length() float64 { return s.To - s.From }

type clipModel struct {
	Video  []segment `json:"video,omitempty"`
	Audio  []segment `json:"audio,omitempty"`
	Layers []string  `json:"layers,omitempty"`
	Text   []string  `json:"text,omitempty"`
}

func trackLength(segs []segment) float64 {
	total := 0.0
	for _, s := range segs {
		total += s.length()
	}
	return total
}

func (c clipModel) duration() float64 {
	return math.Max(trackLength(c.Video), trackLength(c.Audio))
}

func slice(segs []segment, from, to float64) []segment {
	var out []segment
	pos := 0.0
	for _, s := range segs {
		l := s.length()
		a, b := math.Max(from, pos), math.Min(to, pos+l)
		if b > a+1e-9 {
			out = append(out, segment{Src: s.Src, From: s.From + (a - pos), To: s.From + (b - pos)})
		}
		pos += l
	}
	return out
}

func writeModel(t testing.TB, path string, m clipModel) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func readModel(path string) (clipModel, error) {
	var m clipModel
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// fakeProber reads clip models.
type fakeProber struct{}

func (fakeProber) Inspect(ctx context.Context, path string) (*media.Metadata, error) {
	m, err := readModel(path)
	if err != nil {
		return nil, &media.ProbeError{Path: path, Err: err}
	}
	meta := &media.Metadata{DurationSeconds: m.duration(), SizeBytes: 1}
	if len(m.Video) > 0 {
		meta.Streams = append(meta.Streams, media.Stream{Index: 0, Type: "video", FrameRate: 25})
	}
	if len(m.Audio) > 0 {
		meta.Streams = append(meta.Streams, media.Stream{Index: len(meta.Streams), Type: "audio", Channels: 2})
	}
	if meta.DurationSeconds <= 0 {
		return nil, &media.ProbeError{Path: path, Err: errors.New("no duration")}
	}
	return meta, nil
}

// fakeExecutor applies descriptors to clip models.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []media.Descriptor
	failOn  media.Opcode
	corrupt bool
}

func (f *fakeExecutor) Calls() []media.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Descriptor(nil), f.calls...)
}

func (f *fakeExecutor) Invoke(ctx context.Context, d media.Descriptor) (media.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()

	if d.Op == f.failOn {
		os.WriteFile(d.Output, []byte("partial"), 0644)
		return media.Result{}, &media.CodecExecutionError{Op: d.Op, ExitCode: 1, StderrTail: "Conversion failed!"}
	}
	if f.corrupt {
		os.WriteFile(d.Output, []byte("not media"), 0644)
		return media.Result{OutputPath: d.Output}, nil
	}

	inputs := make([]clipModel, len(d.Inputs))
	for i, in := range d.Inputs {
		m, err := readModel(in)
		if err != nil {
			return media.Result{}, &media.CodecExecutionError{Op: d.Op, ExitCode: 1, Err: err}
		}
		inputs[i] = m
	}

	out, err := apply(d, inputs)
	if err != nil {
		return media.Result{}, &media.CodecExecutionError{Op: d.Op, ExitCode: 1, Err: err}
	}
	data, _ := json.Marshal(out)
	if err := os.WriteFile(d.Output, data, 0644); err != nil {
		return media.Result{}, err
	}
	return media.Result{OutputPath: d.Output}, nil
}

func apply(d media.Descriptor, in []clipModel) (clipModel, error) {
	switch p := d.Params.(type) {
	case media.TrimParams:
		return clipModel{
			Video: slice(in[0].Video, p.Start, p.Start+p.Duration),
			Audio: slice(in[0].Audio, p.Start, p.Start+p.Duration),
		}, nil

	case media.ConcatParams:
		var out clipModel
		for _, m := range in {
			out.Video = append(out.Video, m.Video...)
			out.Audio = append(out.Audio, m.Audio...)
		}
		return out, nil

	case media.SpeedParams:
		scale := func(segs []segment) []segment {
			var out []segment
			for _, s := range segs {
				out = append(out, segment{Src: s.Src + "@speed", From: s.From / p.Factor, To: s.To / p.Factor})
			}
			return out
		}
		out := clipModel{Video: scale(in[0].Video)}
		if p.HasAudio {
			out.Audio = scale(in[0].Audio)
		}
		return out, nil

	case media.VolumeParams:
		out := in[0]
		out.Layers = append(out.Layers, fmt.Sprintf("volume=%v", p.Factor))
		return out, nil

	case media.FilterParams:
		out := in[0]
		out.Layers = append(out.Layers, fmt.Sprintf("%s=%v", p.Name, p.Value))
		return out, nil

	case media.DrawTextParams:
		out := in[0]
		out.Text = append(out.Text, p.Text)
		return out, nil

	case media.AudioInsertParams:
		base, src := in[0], in[1]
		ins := slice(src.Audio, 0, p.SourceDuration)
		out := clipModel{Video: base.Video, Audio: base.Audio}
		switch p.Mode {
		case media.InsertPush:
			hold := segment{Src: "hold", From: 0, To: p.SourceDuration}
			out.Video = append(append(slice(base.Video, 0, p.Start), hold), slice(base.Video, p.Start, p.BaseDuration)...)
			audio := slice(base.Audio, 0, p.Start)
			audio = append(audio, ins...)
			out.Audio = append(audio, slice(base.Audio, p.Start, p.BaseDuration)...)
		case media.InsertOverwrite:
			end := math.Min(p.Start+p.SourceDuration, p.BaseDuration)
			audio := slice(base.Audio, 0, p.Start)
			audio = append(audio, slice(ins, 0, end-p.Start)...)
			out.Audio = append(audio, slice(base.Audio, end, p.BaseDuration)...)
		default:
			out.Layers = append(out.Layers, "mix:"+ins[0].Src)
		}
		return out, nil

	case media.MergeParams:
		var out clipModel
		overlap := 0.0
		if p.Transition.Kind == media.TransitionCrossfade {
			overlap = p.Transition.Duration
		}
		for i, m := range in {
			v, a := m.Video, m.Audio
			if i < len(in)-1 && overlap > 0 {
				v = slice(v, 0, trackLength(v)-overlap)
				a = slice(a, 0, trackLength(a)-overlap)
			}
			out.Video = append(out.Video, v...)
			out.Audio = append(out.Audio, a...)
		}
		return out, nil

	case media.ExtractAudioParams:
		return clipModel{Audio: in[0].Audio}, nil
	}
	return clipModel{}, fmt.Errorf("unsupported params %T", d.Params)
}

type historyEntry struct {
	kind   string
	output string
	err    error
	done   bool
}

type fakeHistory struct {
	mu      sync.Mutex
	entries map[string]*historyEntry
	order   []string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[string]*historyEntry{}}
}

func (h *fakeHistory) Begin(ctx context.Context, sessionID, kind, params string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := fmt.Sprintf("op-%d", len(h.order)+1)
	h.entries[id] = &historyEntry{kind: kind}
	h.order = append(h.order, id)
	return id, nil
}

func (h *fakeHistory) Finish(ctx context.Context, opID, outputPath string, opErr error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[opID]
	if !ok {
		return fmt.Errorf("unknown op %s", opID)
	}
	e.output, e.err, e.done = outputPath, opErr, true
	return nil
}

func (h *fakeHistory) last() *historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil
	}
	return h.entries[h.order[len(h.order)-1]]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
