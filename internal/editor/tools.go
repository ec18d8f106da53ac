package editor

import (
	"context"
	"math"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/selection"
	"github.com/kioskmedia/timeline-agent/internal/session"
)

// PreviewEdgeSeconds is the length of a boundary preview.
const PreviewEdgeSeconds = 2.0

// TrimMode decides what the trim tool does with its selection.
type TrimMode string

const (
	TrimKeep   TrimMode = "keep"
	TrimDelete TrimMode = "delete"
)

type TrimOptions struct {
	Mode TrimMode `json:"mode"`
}

type TextOptions struct {
	Content  string          `json:"content"`
	Style    media.TextStyle `json:"style"`
	Position string          `json:"position"`
	// WholeClip ignores the selection and draws for the whole duration.
	WholeClip bool `json:"whole_clip"`
}

func DefaultTextOptions() TextOptions {
	return TextOptions{
		Style:    media.TextStyle{FontSize: 48, FontColor: "white"},
		Position: "bottom",
	}
}

type AudioOptions struct {
	Source string           `json:"source"`
	Mode   media.InsertMode `json:"mode"`
	Volume float64          `json:"volume"`
}

func DefaultAudioOptions() AudioOptions {
	return AudioOptions{Mode: media.InsertMix, Volume: 1}
}

// Options is the full tool option set.
type Options struct {
	Trim  TrimOptions  `json:"trim"`
	Text  TextOptions  `json:"text"`
	Audio AudioOptions `json:"audio"`
}

// PreviewPlan tells the player which span to play back.
type PreviewPlan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// SuppressAutoSkip disables the player's skip over deleted spans so the
	// selection itself can be reviewed.
	SuppressAutoSkip bool `json:"suppress_auto_skip"`
}

// Edge selects a selection boundary.
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

func (e *Editor) SetTrimOptions(o TrimOptions) error {
	switch o.Mode {
	case TrimKeep, TrimDelete:
	case "":
		o.Mode = TrimKeep
	default:
		return &edit.ValidationError{Op: edit.KindTrim, Field: "mode", Reason: "must be keep or delete"}
	}
	e.mu.Lock()
	e.trim = o
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Editor) SetTextOptions(o TextOptions) error {
	if _, ok := media.PositionPreset(o.Position); !ok {
		return &edit.ValidationError{Op: edit.KindText, Field: "position", Reason: "unknown preset " + o.Position}
	}
	def := DefaultTextOptions().Style
	if o.Style.FontSize <= 0 {
		o.Style.FontSize = def.FontSize
	}
	if o.Style.FontColor == "" {
		o.Style.FontColor = def.FontColor
	}
	e.mu.Lock()
	e.text = o
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Editor) SetAudioOptions(o AudioOptions) error {
	if o.Mode == "" {
		o.Mode = media.InsertMix
	}
	if !o.Mode.Valid() {
		return &edit.ValidationError{Op: edit.KindAudioInsert, Field: "mode", Reason: "must be mix, overwrite or push"}
	}
	if o.Volume < 0 || math.IsNaN(o.Volume) {
		return &edit.ValidationError{Op: edit.KindAudioInsert, Field: "volume", Reason: "must not be negative"}
	}
	if o.Volume == 0 {
		o.Volume = 1
	}
	e.mu.Lock()
	e.audio = o
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Editor) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Options{Trim: e.trim, Text: e.text, Audio: e.audio}
}

// GetSelection returns the tool's committed selection.
func (e *Editor) GetSelection(tool selection.Tool) (selection.SelectionRange, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.selections[tool]
	return r, ok
}

// SetSelection sets the tool's selection from typed input. Bounds are
// limited to the clip; the result must still satisfy End > Start.
func (e *Editor) SetSelection(tool selection.Tool, start, end float64) (selection.SelectionRange, error) {
	if !selectable(tool) {
		return selection.SelectionRange{}, &edit.ValidationError{Op: "selection", Field: "tool", Reason: "does not take a selection"}
	}
	r := selection.SelectionRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return selection.SelectionRange{}, &edit.ValidationError{Op: "selection", Reason: err.Error()}
	}

	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return selection.SelectionRange{}, ErrNoSession
	}
	r = r.Clamp(e.durationLocked())
	if err := r.Validate(); err != nil {
		e.mu.Unlock()
		return selection.SelectionRange{}, &edit.ValidationError{Op: "selection", Reason: err.Error()}
	}
	e.selections[tool] = r
	e.mu.Unlock()

	e.changed()
	return r, nil
}

// ClearSelection drops the tool's selection.
func (e *Editor) ClearSelection(tool selection.Tool) {
	e.mu.Lock()
	delete(e.selections, tool)
	e.mu.Unlock()
	e.changed()
}

// PreviewRange returns the span to play for the tool's selection. The
// trim tool plays its selection verbatim.
func (e *Editor) PreviewRange(tool selection.Tool) (PreviewPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return PreviewPlan{}, ErrNoSession
	}
	r, ok := e.selections[tool]
	if !ok {
		return PreviewPlan{}, missingSelection(tool)
	}
	return PreviewPlan{Start: r.Start, End: r.End, SuppressAutoSkip: tool == selection.ToolTrim}, nil
}

// PreviewEdge returns a short span centred on one selection boundary.
func (e *Editor) PreviewEdge(tool selection.Tool, edge Edge) (PreviewPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return PreviewPlan{}, ErrNoSession
	}
	r, ok := e.selections[tool]
	if !ok {
		return PreviewPlan{}, missingSelection(tool)
	}
	total := e.durationLocked()
	plan := PreviewPlan{SuppressAutoSkip: tool == selection.ToolTrim}
	switch edge {
	case EdgeStart:
		plan.Start = math.Max(0, r.Start-PreviewEdgeSeconds/2)
		plan.End = math.Min(total, r.Start+PreviewEdgeSeconds/2)
	case EdgeEnd:
		plan.Start = math.Max(0, r.End-PreviewEdgeSeconds/2)
		plan.End = math.Min(total, r.End+PreviewEdgeSeconds/2)
	default:
		return PreviewPlan{}, &edit.ValidationError{Op: "preview", Field: "edge", Reason: "must be start or end"}
	}
	return plan, nil
}

// Commit turns the tool's selection and options into an operation and runs
// it.
func (e *Editor) Commit(ctx context.Context, tool selection.Tool) (*edit.Result, error) {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return nil, ErrNoSession
	}
	op, err := e.operationLocked(tool)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, op)
}

func (e *Editor) operationLocked(tool selection.Tool) (edit.Operation, error) {
	r, hasSel := e.selections[tool]
	switch tool {
	case selection.ToolTrim:
		if !hasSel {
			return nil, missingSelection(tool)
		}
		if e.trim.Mode == TrimDelete {
			return edit.DeleteRange{Start: r.Start, End: r.End}, nil
		}
		return edit.Trim{Start: r.Start, Duration: r.Span()}, nil

	case selection.ToolText:
		op := edit.TextOverlay{Content: e.text.Content, Style: e.text.Style, Position: e.text.Position}
		if hasSel && !e.text.WholeClip {
			start, end := r.Start, r.End
			op.Start, op.End = &start, &end
		}
		return op, nil

	case selection.ToolAudio:
		start := e.playhead
		if hasSel {
			start = r.Start
		}
		return edit.AudioInsert{Source: e.audio.Source, Start: start, Mode: e.audio.Mode, Volume: e.audio.Volume}, nil
	}
	return nil, &edit.ValidationError{Op: "commit", Field: "tool", Reason: "nothing to commit for " + string(tool)}
}

// Apply runs op against the session. Only one operation runs at a time;
// pointer handling and seeks continue while it runs.
func (e *Editor) Apply(ctx context.Context, op edit.Operation) (*edit.Result, error) {
	sess, err := e.acquire(op.Kind())
	if err != nil {
		return nil, err
	}
	defer e.release()
	e.changed()

	res, err := e.pipeline.Apply(e.withProgress(ctx), sess, op)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.sess == sess {
		e.resetLocked()
		e.regen.Load(sess.ActivePath(), sess.Metadata().DurationSeconds, "")
	}
	e.mu.Unlock()
	return res, nil
}

// ExtractAudio writes the active clip's audio track to dst.
func (e *Editor) ExtractAudio(ctx context.Context, dst, codec string) error {
	sess, err := e.acquire(edit.KindExtractAudio)
	if err != nil {
		return err
	}
	defer e.release()
	return e.pipeline.ExtractAudio(e.withProgress(ctx), sess, dst, codec)
}

// Export copies the active clip to dst.
func (e *Editor) Export(dst string) error {
	sess, err := e.acquire("export")
	if err != nil {
		return err
	}
	defer e.release()
	return sess.Export(dst)
}

// Busy reports the kind of the running operation, or "".
func (e *Editor) Busy() edit.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Progress returns the latest engine report for the running operation, or
// nil when nothing is running or no report has arrived yet.
func (e *Editor) Progress() *media.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress == nil {
		return nil
	}
	p := *e.progress
	return &p
}

func (e *Editor) withProgress(ctx context.Context) context.Context {
	return media.WithProgress(ctx, func(p media.Progress) {
		e.mu.Lock()
		if e.busy != "" {
			e.progress = &p
		}
		e.mu.Unlock()
	})
}

func (e *Editor) acquire(kind edit.Kind) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrNoSession
	}
	if e.busy != "" {
		return nil, ErrBusy
	}
	e.busy = kind
	return e.sess, nil
}

func (e *Editor) release() {
	e.mu.Lock()
	e.busy = ""
	e.progress = nil
	e.mu.Unlock()
	e.changed()
}

func selectable(t selection.Tool) bool {
	return t == selection.ToolTrim || t == selection.ToolText || t == selection.ToolAudio
}

func missingSelection(tool selection.Tool) error {
	return &edit.ValidationError{Op: edit.Kind(tool), Field: "selection", Reason: "is required"}
}
