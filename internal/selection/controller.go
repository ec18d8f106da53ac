// Package selection turns pointer gestures on the timeline into seeks, range
// selections and zoom windows. One Controller serves whichever tool is
// active; the tool only decides the minimum span and what a drag produces.
package selection

import (
	"errors"
	"fmt"
	"math"

	"github.com/kioskmedia/timeline-agent/internal/timeline"
)

const (
	// ThumbHitRadiusPx is how close to the playhead a press must land to
	// grab it instead of starting a selection.
	ThumbHitRadiusPx = 15
	// DragThresholdPx is the movement a press must exceed to become a drag.
	DragThresholdPx = 10

	MinSpanTrim  = 0.5
	MinSpanText  = 0.5
	MinSpanAudio = 0.2
)

// Tool identifies the active editing tool.
type Tool string

const (
	ToolTrim  Tool = "trim"
	ToolText  Tool = "text"
	ToolAudio Tool = "audio"
	ToolZoom  Tool = "zoom"
)

func (t Tool) Valid() bool {
	switch t {
	case ToolTrim, ToolText, ToolAudio, ToolZoom:
		return true
	}
	return false
}

// MinSpan is the shortest drag, in seconds, that commits a selection.
func (t Tool) MinSpan(duration float64) float64 {
	switch t {
	case ToolAudio:
		return MinSpanAudio
	case ToolZoom:
		return timeline.MinZoomSpan * duration
	case ToolText:
		return MinSpanText
	default:
		return MinSpanTrim
	}
}

var (
	ErrInvalidRange = errors.New("selection end must be after start")
	ErrNegativeTime = errors.New("selection starts before zero")
)

// SelectionRange is a tool-scoped [Start, End) span in seconds.
type SelectionRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r SelectionRange) Span() float64 { return r.End - r.Start }

// Clamp orders the bounds and limits them to [0, duration].
func (r SelectionRange) Clamp(duration float64) SelectionRange {
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	r.Start = math.Max(0, math.Min(r.Start, duration))
	r.End = math.Max(0, math.Min(r.End, duration))
	return r
}

// Validate enforces End > Start >= 0.
func (r SelectionRange) Validate() error {
	if math.IsNaN(r.Start) || math.IsNaN(r.End) {
		return fmt.Errorf("%w: NaN bound", ErrInvalidRange)
	}
	if r.Start < 0 {
		return fmt.Errorf("%w: start=%.3f", ErrNegativeTime, r.Start)
	}
	if r.End <= r.Start {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// State of the gesture state machine.
type State int

const (
	StateIdle State = iota
	StatePossibleDrag
	StateDragging
	StateThumbDrag
)

func (s State) String() string {
	switch s {
	case StatePossibleDrag:
		return "possible_drag"
	case StateDragging:
		return "dragging"
	case StateThumbDrag:
		return "thumb_drag"
	default:
		return "idle"
	}
}

// Viewport is the geometry the gesture is interpreted against.
type Viewport struct {
	WidthPx  float64       `json:"width_px"`
	Duration float64       `json:"duration"`
	Zoom     timeline.Zoom `json:"zoom"`
	Playhead float64       `json:"playhead"`
}

func (vp Viewport) usable() bool {
	return vp.WidthPx > 0 && vp.Duration > 0 && vp.Zoom.Validate() == nil
}

func (vp Viewport) timeAt(px float64) float64 {
	px = math.Max(0, math.Min(px, vp.WidthPx))
	t := timeline.PixelToTime(px, vp.WidthPx, vp.Duration, vp.Zoom)
	return math.Max(0, math.Min(t, vp.Duration))
}

// OutcomeKind says what the host should do after a pointer event.
type OutcomeKind string

const (
	OutcomeNone   OutcomeKind = "none"
	OutcomeSeek   OutcomeKind = "seek"
	OutcomeSelect OutcomeKind = "select"
	OutcomeZoom   OutcomeKind = "zoom"
)

// Overlay is the live selection rectangle in track pixels.
type Overlay struct {
	Visible bool    `json:"visible"`
	LeftPx  float64 `json:"left_px"`
	WidthPx float64 `json:"width_px"`
}

type Outcome struct {
	Kind    OutcomeKind    `json:"kind"`
	Time    float64        `json:"time,omitempty"`
	Range   SelectionRange `json:"range"`
	Zoom    timeline.Zoom  `json:"zoom"`
	Overlay Overlay        `json:"overlay"`
}

// Controller is the pointer state machine. It is not safe for concurrent
// use; the editor serialises access.
type Controller struct {
	tool    Tool
	state   State
	startPx float64
	vp      Viewport
}

func NewController(tool Tool) *Controller {
	if !tool.Valid() {
		tool = ToolTrim
	}
	return &Controller{tool: tool}
}

func (c *Controller) Tool() Tool   { return c.tool }
func (c *Controller) State() State { return c.state }

// SetTool switches tools and abandons any gesture in progress.
func (c *Controller) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("unknown tool %q", t)
	}
	c.tool = t
	c.Cancel()
	return nil
}

// Cancel returns to Idle without producing an outcome.
func (c *Controller) Cancel() {
	c.state = StateIdle
	c.startPx = 0
	c.vp = Viewport{}
}

// Down starts a gesture. A press near the visible playhead grabs it.
func (c *Controller) Down(x float64, vp Viewport) Outcome {
	c.Cancel()
	if !vp.usable() {
		return Outcome{Kind: OutcomeNone}
	}
	c.vp = vp
	c.startPx = x

	if px, visible := timeline.TimeToPixel(vp.Playhead, vp.WidthPx, vp.Duration, vp.Zoom); visible && math.Abs(x-px) <= ThumbHitRadiusPx {
		c.state = StateThumbDrag
		return Outcome{Kind: OutcomeNone}
	}
	c.state = StatePossibleDrag
	return Outcome{Kind: OutcomeNone}
}

// Move updates a gesture. Thumb drags seek continuously; other drags update
// the overlay once past the threshold.
func (c *Controller) Move(x float64) Outcome {
	switch c.state {
	case StateThumbDrag:
		return Outcome{Kind: OutcomeSeek, Time: c.vp.timeAt(x)}
	case StatePossibleDrag:
		if math.Abs(x-c.startPx) <= DragThresholdPx {
			return Outcome{Kind: OutcomeNone}
		}
		c.state = StateDragging
		fallthrough
	case StateDragging:
		return Outcome{Kind: OutcomeNone, Overlay: c.overlay(x)}
	}
	return Outcome{Kind: OutcomeNone}
}

// Up finishes a gesture and always returns the controller to Idle.
func (c *Controller) Up(x float64) Outcome {
	defer c.Cancel()

	switch c.state {
	case StateThumbDrag:
		return Outcome{Kind: OutcomeSeek, Time: c.vp.timeAt(x)}
	case StatePossibleDrag:
		if math.Abs(x-c.startPx) <= DragThresholdPx {
			return Outcome{Kind: OutcomeSeek, Time: c.vp.timeAt(x)}
		}
		return c.commit(x)
	case StateDragging:
		return c.commit(x)
	}
	return Outcome{Kind: OutcomeNone}
}

func (c *Controller) commit(x float64) Outcome {
	r := SelectionRange{Start: c.vp.timeAt(c.startPx), End: c.vp.timeAt(x)}.Clamp(c.vp.Duration)
	if r.Span() <= c.tool.MinSpan(c.vp.Duration) {
		return Outcome{Kind: OutcomeNone}
	}

	if c.tool == ToolZoom {
		from := timeline.PixelToPercent(math.Min(c.startPx, x), c.vp.WidthPx)
		to := timeline.PixelToPercent(math.Max(c.startPx, x), c.vp.WidthPx)
		z, err := c.vp.Zoom.Narrow(from, to)
		if err != nil {
			return Outcome{Kind: OutcomeNone}
		}
		return Outcome{Kind: OutcomeZoom, Range: r, Zoom: z}
	}
	return Outcome{Kind: OutcomeSelect, Range: r, Overlay: c.overlay(x)}
}

func (c *Controller) overlay(x float64) Overlay {
	left := math.Max(0, math.Min(c.startPx, x))
	right := math.Min(c.vp.WidthPx, math.Max(c.startPx, x))
	return Overlay{Visible: true, LeftPx: left, WidthPx: math.Max(0, right-left)}
}

// OverlayFor positions the overlay of an existing selection in a viewport.
// The overlay is hidden when the range lies entirely outside the window.
func OverlayFor(r SelectionRange, vp Viewport) Overlay {
	if !vp.usable() || r.Span() <= 0 {
		return Overlay{}
	}
	startPct, _ := timeline.TimeToTrackPercent(r.Start, vp.Duration, vp.Zoom)
	endPct, _ := timeline.TimeToTrackPercent(r.End, vp.Duration, vp.Zoom)
	if endPct < 0 || startPct > 1 {
		return Overlay{}
	}
	left := math.Max(0, startPct) * vp.WidthPx
	right := math.Min(1, endPct) * vp.WidthPx
	return Overlay{Visible: true, LeftPx: left, WidthPx: right - left}
}
