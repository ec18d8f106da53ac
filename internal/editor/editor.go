// Package editor holds the state of one editing surface: the open media
// session, the zoom window, the playhead, per-tool selections and options.
// Every UI binding drives the engine through an Editor.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/logging"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/selection"
	"github.com/kioskmedia/timeline-agent/internal/session"
	"github.com/kioskmedia/timeline-agent/internal/timeline"
	"github.com/kioskmedia/timeline-agent/internal/waveform"
)

var (
	ErrNoSession = errors.New("no media loaded")
	ErrBusy      = errors.New("an operation is already running")
)

// KindImport marks the busy slot while a new file is being opened.
const KindImport edit.Kind = "import"

type Option func(*Editor)

// WithChangeHook registers fn to be called after any state change. It runs
// outside the editor's lock.
func WithChangeHook(fn func()) Option {
	return func(e *Editor) { e.onChange = fn }
}

type Editor struct {
	sessions *session.Manager
	pipeline *edit.Pipeline
	regen    *waveform.Regenerator
	logger   *slog.Logger
	onChange func()

	mu         sync.Mutex
	sess       *session.Session
	ctrl       *selection.Controller
	zoom       timeline.Zoom
	playhead   float64
	widthPx    float64
	selections map[selection.Tool]selection.SelectionRange
	trim       TrimOptions
	text       TextOptions
	audio      AudioOptions
	busy       edit.Kind
	progress   *media.Progress
}

func New(sessions *session.Manager, pipeline *edit.Pipeline, regen *waveform.Regenerator, logger *slog.Logger, opts ...Option) *Editor {
	e := &Editor{
		sessions: sessions,
		pipeline: pipeline,
		regen:    regen,
		logger:   logging.WithComponent(logger, "editor"),
		ctrl:     selection.NewController(selection.ToolTrim),
	}
	e.resetLocked()
	e.trim = TrimOptions{Mode: TrimKeep}
	e.text = DefaultTextOptions()
	e.audio = DefaultAudioOptions()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Import opens path as the new session. On failure the current session, if
// any, stays active. The import holds the busy slot, so no operation can
// start on the session it is about to replace.
func (e *Editor) Import(ctx context.Context, path string) (*session.Info, error) {
	e.mu.Lock()
	if e.busy != "" {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.busy = KindImport
	e.mu.Unlock()
	defer e.release()

	sess, err := e.sessions.Open(ctx, path)
	if err != nil {
		e.logger.Warn("import failed", "path", logging.SanitizePath(path), "error", err)
		return nil, err
	}

	e.mu.Lock()
	prev := e.sess
	e.sess = sess
	e.resetLocked()
	meta := sess.Metadata()
	e.regen.Load(sess.ActivePath(), meta.DurationSeconds, "")
	info := sess.Info()
	e.mu.Unlock()

	if prev != nil {
		if err := prev.Close(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("failed to close previous session", "session_id", prev.ID, "error", err)
		}
	}
	return &info, nil
}

// Close tears down the current session and deletes its temporary artifacts.
func (e *Editor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.busy != "" {
		e.mu.Unlock()
		return ErrBusy
	}
	sess := e.sess
	e.sess = nil
	e.resetLocked()
	e.regen.Load("", 0, "")
	e.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}
	err := sess.Close(ctx)
	e.changed()
	return err
}

// Shutdown closes the session, if any, and stops the waveform regenerator.
func (e *Editor) Shutdown(ctx context.Context) error {
	err := e.Close(ctx)
	e.regen.Close()
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// Session returns the open session or ErrNoSession.
func (e *Editor) Session() (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrNoSession
	}
	return e.sess, nil
}

// SelectTool switches the active tool, abandoning any gesture in progress.
func (e *Editor) SelectTool(t selection.Tool) error {
	e.mu.Lock()
	err := e.ctrl.SetTool(t)
	e.mu.Unlock()
	if err != nil {
		return &edit.ValidationError{Op: "select_tool", Field: "tool", Reason: err.Error()}
	}
	e.changed()
	return nil
}

// SetZoom sets the visible window in fractions of the clip.
func (e *Editor) SetZoom(start, end float64) (timeline.Zoom, error) {
	z, err := timeline.NewZoom(start, end)
	if err != nil {
		return e.currentZoom(), &edit.ValidationError{Op: "zoom", Reason: err.Error()}
	}
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return z, ErrNoSession
	}
	e.setZoomLocked(z)
	e.mu.Unlock()
	e.changed()
	return z, nil
}

// ResetZoom returns to the full window.
func (e *Editor) ResetZoom() {
	e.mu.Lock()
	e.setZoomLocked(timeline.FullZoom())
	e.mu.Unlock()
	e.changed()
}

// DoubleClick on the track resets the zoom.
func (e *Editor) DoubleClick() {
	e.mu.Lock()
	e.ctrl.Cancel()
	e.mu.Unlock()
	e.ResetZoom()
}

// Seek moves the playhead, clamped to the clip.
func (e *Editor) Seek(t float64) (float64, error) {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return 0, ErrNoSession
	}
	if math.IsNaN(t) {
		e.mu.Unlock()
		return e.playhead, &edit.ValidationError{Op: "seek", Field: "time", Reason: "must be a number"}
	}
	e.playhead = math.Max(0, math.Min(t, e.durationLocked()))
	t = e.playhead
	e.mu.Unlock()
	e.changed()
	return t, nil
}

// PointerDown starts a gesture at x on a track widthPx wide.
func (e *Editor) PointerDown(x, widthPx float64) (selection.Outcome, error) {
	e.mu.Lock()
	if e.sess == nil {
		e.mu.Unlock()
		return selection.Outcome{Kind: selection.OutcomeNone}, ErrNoSession
	}
	e.widthPx = widthPx
	out := e.ctrl.Down(x, e.viewportLocked())
	e.mu.Unlock()
	return out, nil
}

func (e *Editor) PointerMove(x float64) selection.Outcome {
	e.mu.Lock()
	out := e.ctrl.Move(x)
	e.applyLocked(out)
	e.mu.Unlock()
	if out.Kind != selection.OutcomeNone {
		e.changed()
	}
	return out
}

func (e *Editor) PointerUp(x float64) selection.Outcome {
	e.mu.Lock()
	out := e.ctrl.Up(x)
	e.applyLocked(out)
	e.mu.Unlock()
	if out.Kind != selection.OutcomeNone {
		e.changed()
	}
	return out
}

func (e *Editor) applyLocked(out selection.Outcome) {
	switch out.Kind {
	case selection.OutcomeSeek:
		e.playhead = out.Time
	case selection.OutcomeSelect:
		e.selections[e.ctrl.Tool()] = out.Range
	case selection.OutcomeZoom:
		e.setZoomLocked(out.Zoom)
	}
}

func (e *Editor) setZoomLocked(z timeline.Zoom) {
	e.zoom = z
	e.regen.SetZoom(z)
}

func (e *Editor) currentZoom() timeline.Zoom {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zoom
}

func (e *Editor) viewportLocked() selection.Viewport {
	return selection.Viewport{
		WidthPx:  e.widthPx,
		Duration: e.durationLocked(),
		Zoom:     e.zoom,
		Playhead: e.playhead,
	}
}

func (e *Editor) durationLocked() float64 {
	if e.sess == nil {
		return 0
	}
	return e.sess.Metadata().DurationSeconds
}

// resetLocked clears the transient UI state tied to the active artifact.
func (e *Editor) resetLocked() {
	e.zoom = timeline.FullZoom()
	e.playhead = 0
	e.selections = make(map[selection.Tool]selection.SelectionRange)
	e.ctrl.Cancel()
}

func (e *Editor) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}
