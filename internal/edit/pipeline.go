package edit

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kioskmedia/timeline-agent/internal/logging"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/session"
)

// maxProbeConcurrency bounds parallel ffprobe calls during a merge.
const maxProbeConcurrency = 4

// History records operations. Implementations must be safe for concurrent
// use.
type History interface {
	Begin(ctx context.Context, sessionID, kind, params string) (string, error)
	Finish(ctx context.Context, opID, outputPath string, opErr error) error
}

// Result describes a successful operation.
type Result struct {
	OpID           string        `json:"op_id,omitempty"`
	Kind           Kind          `json:"kind"`
	OutputPath     string        `json:"output_path"`
	BeforeDuration float64       `json:"before_duration"`
	AfterDuration  float64       `json:"after_duration"`
	Retired        []string      `json:"retired,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Pipeline runs operations against a session.
type Pipeline struct {
	exec    media.Executor
	prober  media.Prober
	history History
	logger  *slog.Logger
}

// New creates a Pipeline. history may be nil.
func New(exec media.Executor, prober media.Prober, history History, logger *slog.Logger) *Pipeline {
	return &Pipeline{exec: exec, prober: prober, history: history, logger: logger}
}

// Apply validates op, runs it and adopts the output into sess. On any
// failure the session is left as it was and every intermediate the
// operation created is removed.
func (p *Pipeline) Apply(ctx context.Context, sess *session.Session, op Operation) (*Result, error) {
	meta := sess.Metadata()
	if err := op.Validate(meta); err != nil {
		p.logger.Info("operation rejected", "op", op.Kind(), "error", err)
		return nil, err
	}

	start := time.Now()
	opID := p.begin(ctx, sess.ID, op)
	logger := logging.WithOperation(logging.WithSessionID(p.logger, sess.ID), string(op.Kind()), opID)
	logger.Info("operation started", "params", describe(op))

	output, err := p.run(ctx, sess, op, meta)
	if err != nil {
		p.finish(ctx, opID, "", err)
		logger.Warn("operation failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	retired, err := sess.Adopt(ctx, output)
	if err != nil {
		p.finish(ctx, opID, "", err)
		logger.Warn("operation output rejected", "error", err)
		return nil, err
	}
	p.finish(ctx, opID, output, nil)

	res := &Result{
		OpID:           opID,
		Kind:           op.Kind(),
		OutputPath:     output,
		BeforeDuration: meta.DurationSeconds,
		AfterDuration:  sess.Metadata().DurationSeconds,
		Retired:        retired,
		Elapsed:        time.Since(start),
	}
	logger.Info("operation succeeded",
		"before_s", res.BeforeDuration,
		"after_s", res.AfterDuration,
		"duration_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) Trim(ctx context.Context, sess *session.Session, start, duration float64) (*Result, error) {
	return p.Apply(ctx, sess, Trim{Start: start, Duration: duration})
}

func (p *Pipeline) DeleteRange(ctx context.Context, sess *session.Session, start, end float64) (*Result, error) {
	return p.Apply(ctx, sess, DeleteRange{Start: start, End: end})
}

func (p *Pipeline) Speed(ctx context.Context, sess *session.Session, factor float64) (*Result, error) {
	return p.Apply(ctx, sess, SpeedChange{Factor: factor})
}

func (p *Pipeline) Volume(ctx context.Context, sess *session.Session, factor float64) (*Result, error) {
	return p.Apply(ctx, sess, VolumeChange{Factor: factor})
}

func (p *Pipeline) Text(ctx context.Context, sess *session.Session, op TextOverlay) (*Result, error) {
	return p.Apply(ctx, sess, op)
}

func (p *Pipeline) InsertAudio(ctx context.Context, sess *session.Session, op AudioInsert) (*Result, error) {
	return p.Apply(ctx, sess, op)
}

func (p *Pipeline) Merge(ctx context.Context, sess *session.Session, op Merge) (*Result, error) {
	return p.Apply(ctx, sess, op)
}

func (p *Pipeline) Filter(ctx context.Context, sess *session.Session, name media.FilterName, value float64) (*Result, error) {
	return p.Apply(ctx, sess, Filter{Name: name, Value: value})
}

// ExtractAudio writes the active artifact's audio track to dst. The session
// is not changed.
func (p *Pipeline) ExtractAudio(ctx context.Context, sess *session.Session, dst, codec string) error {
	meta := sess.Metadata()
	if !meta.HasAudio() {
		return invalid(KindExtractAudio, "", "clip has no audio track")
	}
	if dst == "" {
		return invalid(KindExtractAudio, "dest", "is required")
	}

	opID := p.begin(ctx, sess.ID, extractOp{Dest: dst, Codec: codec})
	_, err := p.exec.Invoke(ctx, media.Descriptor{
		Op:     media.OpExtractAudio,
		Inputs: []string{sess.ActivePath()},
		Output: dst,
		Params: media.ExtractAudioParams{Codec: codec},
	})
	p.finish(ctx, opID, dst, err)
	return err
}

type extractOp struct {
	Dest  string `json:"dest"`
	Codec string `json:"codec,omitempty"`
}

func (extractOp) Kind() Kind                          { return KindExtractAudio }
func (extractOp) Validate(meta *media.Metadata) error { return nil }

func (p *Pipeline) run(ctx context.Context, sess *session.Session, op Operation, meta *media.Metadata) (string, error) {
	active := sess.ActivePath()
	switch o := op.(type) {
	case Trim:
		return p.invoke(ctx, sess, "trim", "", []string{active},
			media.TrimParams{Start: o.Start, Duration: o.Duration, StreamCopy: true})

	case DeleteRange:
		return p.deleteRange(ctx, sess, o, meta)

	case SpeedChange:
		return p.invoke(ctx, sess, "speed", "", []string{active},
			media.SpeedParams{Factor: o.Factor, HasAudio: meta.HasAudio()})

	case VolumeChange:
		return p.invoke(ctx, sess, "volume", "", []string{active},
			media.VolumeParams{Factor: o.Factor})

	case TextOverlay:
		pos, _ := media.PositionPreset(o.Position)
		params := media.DrawTextParams{Text: o.Content, Style: o.Style, Position: pos}
		if start, end, timed := o.window(meta.DurationSeconds); timed {
			params.Start, params.End = &start, &end
		}
		return p.invoke(ctx, sess, "text", "", []string{active}, params)

	case AudioInsert:
		return p.insertAudio(ctx, sess, o, meta)

	case Merge:
		return p.merge(ctx, sess, o)

	case Filter:
		return p.invoke(ctx, sess, "filter", "", []string{active},
			media.FilterParams{Name: o.Name, Value: o.Value})
	}
	return "", fmt.Errorf("unsupported operation %T", op)
}

// invoke allocates an output artifact and runs one engine call. The output
// is discarded if the call fails.
func (p *Pipeline) invoke(ctx context.Context, sess *session.Session, tag, ext string, inputs []string, params media.Params) (string, error) {
	out, err := sess.NewArtifactPath(ctx, tag, ext)
	if err != nil {
		return "", err
	}
	d := media.Descriptor{Op: params.Opcode(), Inputs: inputs, Output: out, Params: params}
	if _, err := p.exec.Invoke(ctx, d); err != nil {
		p.discard(ctx, sess, out)
		return "", err
	}
	return out, nil
}

func (p *Pipeline) deleteRange(ctx context.Context, sess *session.Session, o DeleteRange, meta *media.Metadata) (string, error) {
	total := meta.DurationSeconds
	active := sess.ActivePath()
	head, tail := o.parts(total)

	var parts []string
	defer func() {
		for _, part := range parts {
			p.discard(ctx, sess, part)
		}
	}()

	if head {
		a, err := p.invoke(ctx, sess, "delete-head", "", []string{active},
			media.TrimParams{Start: 0, Duration: o.Start, StreamCopy: true})
		if err != nil {
			return "", err
		}
		parts = append(parts, a)
	}
	if tail {
		b, err := p.invoke(ctx, sess, "delete-tail", "", []string{active},
			media.TrimParams{Start: o.End, Duration: total - o.End, StreamCopy: true})
		if err != nil {
			return "", err
		}
		parts = append(parts, b)
	}

	if len(parts) == 1 {
		only := parts[0]
		parts = nil
		return only, nil
	}
	return p.invoke(ctx, sess, "delete", "", parts, media.ConcatParams{})
}

func (p *Pipeline) insertAudio(ctx context.Context, sess *session.Session, o AudioInsert, meta *media.Metadata) (string, error) {
	src, err := p.prober.Inspect(ctx, o.Source)
	if err != nil {
		return "", err
	}
	if !src.HasAudio() {
		return "", invalid(KindAudioInsert, "source", "has no audio track")
	}
	return p.invoke(ctx, sess, "audio-"+string(o.Mode), "", []string{sess.ActivePath(), o.Source},
		media.AudioInsertParams{
			Mode:           o.Mode,
			Start:          o.Start,
			SourceDuration: src.DurationSeconds,
			Volume:         o.volume(),
			BaseHasAudio:   meta.HasAudio(),
			BaseDuration:   meta.DurationSeconds,
		})
}

func (p *Pipeline) merge(ctx context.Context, sess *session.Session, o Merge) (string, error) {
	clips := append([]string(nil), o.Clips...)
	if o.IncludeActive {
		clips = append([]string{sess.ActivePath()}, clips...)
	}

	metas := make([]*media.Metadata, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProbeConcurrency)
	for i, clip := range clips {
		i, clip := i, clip
		g.Go(func() error {
			m, err := p.prober.Inspect(gctx, clip)
			if err != nil {
				return err
			}
			metas[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	durations := make([]float64, len(metas))
	hasAudio := true
	for i, m := range metas {
		durations[i] = m.DurationSeconds
		hasAudio = hasAudio && m.HasAudio()
	}
	if err := o.validateDurations(durations); err != nil {
		return "", err
	}

	transition := o.Transition
	if transition.Kind == "" {
		transition.Kind = media.TransitionNone
	}
	return p.invoke(ctx, sess, "merge", filepath.Ext(clips[0]), clips, media.MergeParams{
		Transition: transition,
		Durations:  durations,
		HasAudio:   hasAudio,
	})
}

func (p *Pipeline) discard(ctx context.Context, sess *session.Session, path string) {
	if err := sess.Discard(context.WithoutCancel(ctx), path); err != nil {
		p.logger.Warn("failed to remove intermediate artifact", "artifact", filepath.Base(path), "error", err)
	}
}

func (p *Pipeline) begin(ctx context.Context, sessionID string, op Operation) string {
	if p.history == nil {
		return ""
	}
	id, err := p.history.Begin(ctx, sessionID, string(op.Kind()), describe(op))
	if err != nil {
		p.logger.Warn("failed to record operation", "op", op.Kind(), "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) finish(ctx context.Context, opID, output string, opErr error) {
	if p.history == nil || opID == "" {
		return
	}
	// The outcome is recorded even when the request context was cancelled.
	if err := p.history.Finish(context.WithoutCancel(ctx), opID, output, opErr); err != nil {
		p.logger.Warn("failed to record operation outcome", "op_id", opID, "error", err)
	}
}
