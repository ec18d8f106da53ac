package media

import (
	"bytes"
	"context"
	"math"
	"regexp"
	"strconv"
)

// Progress is a point-in-time report from a running engine call.
type Progress struct {
	Op      Opcode  `json:"op"`
	Seconds float64 `json:"seconds"`
	Total   float64 `json:"total,omitempty"`
	Percent float64 `json:"percent"`
}

// ProgressFunc receives progress reports. It is called from the goroutine
// draining the engine's stderr and must not block.
type ProgressFunc func(Progress)

type progressKey struct{}

// WithProgress attaches fn to ctx. Executors report to it while an engine
// call runs.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFrom returns the ProgressFunc attached to ctx, or nil.
func ProgressFrom(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}

var (
	durationRe = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=(-?)(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

const maxProgressLine = 4096

// progressWriter scans engine stderr for the input duration and the
// time= field of status lines.
type progressWriter struct {
	op       Opcode
	params   Params
	fn       ProgressFunc
	total    float64
	haveIn   bool
	line     []byte
	lastPct  float64
	reported bool
}

func newProgressWriter(d Descriptor, fn ProgressFunc) *progressWriter {
	return &progressWriter{op: d.Op, params: d.Params, fn: fn, total: expectedSeconds(d.Params, 0)}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			w.line = append(w.line, p...)
			if len(w.line) > maxProgressLine {
				w.line = append(w.line[:0], w.line[len(w.line)-maxProgressLine:]...)
			}
			break
		}
		w.line = append(w.line, p[:i]...)
		w.scan(w.line)
		w.line = w.line[:0]
		p = p[i+1:]
	}
	return n, nil
}

func (w *progressWriter) scan(line []byte) {
	if !w.haveIn {
		if m := durationRe.FindSubmatch(line); m != nil {
			w.haveIn = true
			if w.total <= 0 {
				w.total = expectedSeconds(w.params, clock(m[1], m[2], m[3]))
			}
			return
		}
	}
	m := timeRe.FindSubmatch(line)
	if m == nil {
		return
	}
	secs := 0.0
	if len(m[1]) == 0 {
		secs = clock(m[2], m[3], m[4])
	}
	w.report(secs)
}

func (w *progressWriter) report(secs float64) {
	pr := Progress{Op: w.op, Seconds: secs, Total: w.total}
	if w.total > 0 {
		pr.Percent = math.Round(math.Min(secs/w.total, 1)*1000) / 10
	}
	if w.reported && pr.Percent < w.lastPct {
		pr.Percent = w.lastPct
	}
	w.lastPct = pr.Percent
	w.reported = true
	w.fn(pr)
}

// done reports completion after a successful call.
func (w *progressWriter) done() {
	w.fn(Progress{Op: w.op, Seconds: w.total, Total: w.total, Percent: 100})
}

func clock(h, m, s []byte) float64 {
	hh, _ := strconv.ParseFloat(string(h), 64)
	mm, _ := strconv.ParseFloat(string(m), 64)
	ss, _ := strconv.ParseFloat(string(s), 64)
	return hh*3600 + mm*60 + ss
}

// expectedSeconds estimates the output length of a call from its parameters
// and the first input's duration. Zero means unknown.
func expectedSeconds(p Params, input float64) float64 {
	switch p := p.(type) {
	case TrimParams:
		return p.Duration
	case SpeedParams:
		if input > 0 && p.Factor > 0 {
			return input / p.Factor
		}
		return 0
	case AudioInsertParams:
		if p.Mode == InsertPush {
			return p.BaseDuration + p.SourceDuration
		}
		return p.BaseDuration
	case MergeParams:
		var sum float64
		for _, d := range p.Durations {
			sum += d
		}
		if p.Transition.Kind == TransitionCrossfade && len(p.Durations) > 1 {
			sum -= float64(len(p.Durations)-1) * p.Transition.Duration
		}
		return sum
	}
	return input
}
