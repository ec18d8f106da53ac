// Package waveform keeps the displayed waveform image in step with the zoom
// window. Zoom changes are debounced into a single background render; a
// render whose window no longer matches the live window when it completes is
// discarded.
package waveform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kioskmedia/timeline-agent/internal/timeline"
)

// DefaultDelay is the quiet period after the last zoom change before a
// regeneration is issued.
const DefaultDelay = 300 * time.Millisecond

// Range is a time span in seconds passed to the renderer.
type Range = timeline.Range

// Renderer produces a base64-encoded waveform image for a file, or for a
// window of it when r is non-nil.
type Renderer interface {
	Render(ctx context.Context, path string, r *Range) (string, error)
}

// Status of a regeneration request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApplied   Status = "applied"
	StatusDiscarded Status = "discarded"
	StatusFailed    Status = "failed"
)

// RegenerationRequest identifies one render issued for a captured window.
type RegenerationRequest struct {
	Token     string  `json:"token"`
	ZoomStart float64 `json:"zoom_start"`
	ZoomEnd   float64 `json:"zoom_end"`
	Status    Status  `json:"status"`
}

// EventKind classifies observer notifications.
type EventKind string

const (
	EventApplied   EventKind = "applied"
	EventDiscarded EventKind = "discarded"
	EventFailed    EventKind = "failed"
	EventReset     EventKind = "reset"
)

type Event struct {
	Kind    EventKind
	Request RegenerationRequest
	Err     error
}

// Observer is notified outside the regenerator's lock.
type Observer func(Event)

// Scheduler arms a one-shot timer and returns a function that disarms it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func timeScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// State is a copy of what should currently be displayed.
type State struct {
	Path      string                  `json:"path"`
	Duration  float64                 `json:"duration"`
	Mode      timeline.Mode           `json:"mode"`
	Image     string                  `json:"image,omitempty"`
	ImageZoom timeline.Zoom           `json:"image_zoom"`
	Zoom      timeline.Zoom           `json:"zoom"`
	InFlight  *RegenerationRequest    `json:"in_flight,omitempty"`
	Last      *RegenerationRequest    `json:"last,omitempty"`
	Transform timeline.ImageTransform `json:"transform"`
}

type Option func(*Regenerator)

func WithScheduler(s Scheduler) Option {
	return func(r *Regenerator) { r.schedule = s }
}

func WithObserver(o Observer) Option {
	return func(r *Regenerator) { r.observer = o }
}

// Regenerator owns the waveform image, the debounce timer and the single
// in-flight render.
type Regenerator struct {
	renderer Renderer
	delay    time.Duration
	schedule Scheduler
	observer Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	path      string
	duration  float64
	fullImage string
	zoom      timeline.Zoom
	mode      timeline.Mode
	image     string
	imageZoom timeline.Zoom
	epoch     uint64
	timerSeq  uint64
	stopTimer func() bool
	inFlight  *RegenerationRequest
	last      *RegenerationRequest
	followUp  bool
	closed    bool
}

func New(renderer Renderer, delay time.Duration, logger *slog.Logger, opts ...Option) *Regenerator {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Regenerator{
		renderer:  renderer,
		delay:     delay,
		schedule:  timeScheduler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		zoom:      timeline.FullZoom(),
		mode:      timeline.ModeFull,
		imageZoom: timeline.FullZoom(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load switches to a new media file. Anything issued for the previous file
// is discarded. With an empty fullImage the full-range image is rendered in
// the background.
func (r *Regenerator) Load(path string, duration float64, fullImage string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.clearLocked()
	r.path = path
	r.duration = duration
	r.fullImage = fullImage
	r.showFullLocked()
	if fullImage == "" && path != "" {
		r.startLocked()
	}
	r.mu.Unlock()

	r.logger.Info("waveform loaded", "duration_s", duration, "has_image", fullImage != "")
}

// SetZoom records the live window and restarts the debounce timer. The full
// image is shown under a proportional transform until the regenerated one
// arrives. A full window is equivalent to Reset.
func (r *Regenerator) SetZoom(z timeline.Zoom) {
	if z.IsFull() {
		r.Reset()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.path == "" {
		r.zoom = z
		return
	}
	r.zoom = z
	r.showFullLocked()
	r.armLocked()
}

// Reset cancels the pending timer, forgets the in-flight render and restores
// the full waveform.
func (r *Regenerator) Reset() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.clearLocked()
	r.zoom = timeline.FullZoom()
	r.showFullLocked()
	if r.fullImage == "" && r.path != "" {
		r.startLocked()
	}
	r.mu.Unlock()

	r.logger.Debug("waveform reset")
	r.notify(Event{Kind: EventReset})
}

// Snapshot returns the current display state.
func (r *Regenerator) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := State{
		Path:      r.path,
		Duration:  r.duration,
		Mode:      r.mode,
		Image:     r.image,
		ImageZoom: r.imageZoom,
		Zoom:      r.zoom,
		Transform: timeline.FullImageTransform(r.zoom),
	}
	if r.mode == timeline.ModeRegenerated {
		s.Transform = timeline.ImageTransform{Scale: 1}
	}
	if r.inFlight != nil {
		req := *r.inFlight
		s.InFlight = &req
	}
	if r.last != nil {
		req := *r.last
		s.Last = &req
	}
	return s
}

// Close stops the timer, cancels any render and waits for it to return.
func (r *Regenerator) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.clearLocked()
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Regenerator) clearLocked() {
	if r.stopTimer != nil {
		r.stopTimer()
		r.stopTimer = nil
	}
	r.timerSeq++
	r.epoch++
	r.inFlight = nil
	r.followUp = false
}

func (r *Regenerator) showFullLocked() {
	r.mode = timeline.ModeFull
	r.image = r.fullImage
	r.imageZoom = timeline.FullZoom()
}

func (r *Regenerator) armLocked() {
	if r.stopTimer != nil {
		r.stopTimer()
	}
	r.timerSeq++
	seq := r.timerSeq
	r.stopTimer = r.schedule(r.delay, func() { r.fire(seq) })
}

func (r *Regenerator) fire(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.timerSeq || r.closed {
		return
	}
	r.stopTimer = nil
	if r.inFlight != nil {
		r.followUp = true
		r.logger.Debug("waveform render in flight, deferring", "token", r.inFlight.Token)
		return
	}
	r.startLocked()
}

func (r *Regenerator) startLocked() {
	captured := r.zoom
	req := &RegenerationRequest{
		Token:     uuid.NewString(),
		ZoomStart: captured.Start,
		ZoomEnd:   captured.End,
		Status:    StatusPending,
	}
	var rng *Range
	if !captured.IsFull() {
		w := captured.Range(r.duration)
		rng = &w
	}
	r.inFlight = req
	r.last = req

	epoch := r.epoch
	path := r.path
	r.wg.Add(1)
	go r.render(req, captured, epoch, path, rng)
}

func (r *Regenerator) render(req *RegenerationRequest, captured timeline.Zoom, epoch uint64, path string, rng *Range) {
	defer r.wg.Done()
	start := time.Now()
	img, err := r.renderer.Render(r.ctx, path, rng)

	r.mu.Lock()
	if r.inFlight == req {
		r.inFlight = nil
	}
	stale := r.closed || epoch != r.epoch || !captured.Equal(r.zoom)

	var ev Event
	switch {
	case stale:
		req.Status = StatusDiscarded
		ev = Event{Kind: EventDiscarded, Request: *req, Err: err}
		r.logger.Debug("waveform render discarded",
			"outcome", "race_discard",
			"token", req.Token,
			"captured_start", captured.Start,
			"captured_end", captured.End,
			"live_start", r.zoom.Start,
			"live_end", r.zoom.End,
		)
	case err != nil:
		req.Status = StatusFailed
		ev = Event{Kind: EventFailed, Request: *req, Err: err}
		r.logger.Warn("waveform render failed",
			"outcome", "render_error",
			"token", req.Token,
			"error", err,
		)
	default:
		req.Status = StatusApplied
		r.image = img
		r.imageZoom = captured
		if captured.IsFull() {
			r.fullImage = img
			r.mode = timeline.ModeFull
		} else {
			r.mode = timeline.ModeRegenerated
		}
		ev = Event{Kind: EventApplied, Request: *req}
		r.logger.Debug("waveform render applied",
			"token", req.Token,
			"zoom_start", captured.Start,
			"zoom_end", captured.End,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if r.followUp && r.inFlight == nil && !r.closed {
		r.followUp = false
		if r.stopTimer == nil && !r.showingLiveLocked() {
			r.startLocked()
		}
	}
	r.mu.Unlock()

	r.notify(ev)
}

// showingLiveLocked reports whether the displayed image already covers the
// live window.
func (r *Regenerator) showingLiveLocked() bool {
	if r.zoom.IsFull() {
		return r.mode == timeline.ModeFull && r.image != ""
	}
	return r.mode == timeline.ModeRegenerated && r.imageZoom.Equal(r.zoom)
}

func (r *Regenerator) notify(ev Event) {
	if r.observer != nil {
		r.observer(ev)
	}
}
