// Package timeline maps between absolute media time, fractional track
// position and pixel offsets under an adjustable zoom window.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

// MinZoomSpan is the narrowest zoom window accepted, as a fraction of the
// total duration.
const MinZoomSpan = 0.01

var (
	ErrDegenerateZoom  = errors.New("zoom window narrower than minimum span")
	ErrZoomOutOfBounds = errors.New("zoom window outside [0,1]")
)

// Zoom is the visible sub-range of the media, as fractions of total duration.
type Zoom struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FullZoom returns the unzoomed window {0,1}.
func FullZoom() Zoom {
	return Zoom{Start: 0, End: 1}
}

// NewZoom validates and builds a zoom window.
func NewZoom(start, end float64) (Zoom, error) {
	z := Zoom{Start: start, End: end}
	if err := z.Validate(); err != nil {
		return Zoom{}, err
	}
	return z, nil
}

// Validate enforces 0 <= start < end <= 1 and the minimum span.
func (z Zoom) Validate() error {
	if math.IsNaN(z.Start) || math.IsNaN(z.End) {
		return fmt.Errorf("%w: NaN bound", ErrZoomOutOfBounds)
	}
	if z.Start < 0 || z.End > 1 || z.Start >= z.End {
		return fmt.Errorf("%w: start=%.4f end=%.4f", ErrZoomOutOfBounds, z.Start, z.End)
	}
	if z.End-z.Start < MinZoomSpan {
		return fmt.Errorf("%w: span=%.4f", ErrDegenerateZoom, z.End-z.Start)
	}
	return nil
}

func (z Zoom) Span() float64 {
	return z.End - z.Start
}

func (z Zoom) IsFull() bool {
	return z.Start == 0 && z.End == 1
}

// Equal is an exact comparison. The waveform staleness check relies on the
// captured window being bit-identical to the live one.
func (z Zoom) Equal(other Zoom) bool {
	return z.Start == other.Start && z.End == other.End
}

// Narrow maps a [from,to] fraction of the visible window to a new absolute
// window. This is what a zoom-drag gesture produces.
func (z Zoom) Narrow(from, to float64) (Zoom, error) {
	if from > to {
		from, to = to, from
	}
	from = clamp01(from)
	to = clamp01(to)
	span := z.Span()
	return NewZoom(z.Start+from*span, z.Start+to*span)
}

// StartTime and EndTime return the window bounds in seconds.
func (z Zoom) StartTime(duration float64) float64 {
	return z.Start * duration
}

func (z Zoom) EndTime(duration float64) float64 {
	return z.End * duration
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Range is a time span in seconds, used to request renders of a window.
type Range struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Range converts the window to seconds for a media of the given duration.
func (z Zoom) Range(duration float64) Range {
	return Range{Start: z.StartTime(duration), Duration: z.Span() * duration}
}
