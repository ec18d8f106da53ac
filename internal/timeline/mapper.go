package timeline

// Mode is the waveform rendering mode the playhead position is computed for.
type Mode string

const (
	// ModeFull shows the original full-range image scaled to the window.
	ModeFull Mode = "full"
	// ModeRegenerated shows an image rendered for exactly the zoom window.
	ModeRegenerated Mode = "regenerated"
)

// TimeToTrackPercent converts an absolute time to a [0,1] position on the
// visible track. Positions outside the window are returned unclamped with
// visible=false so callers hide the playhead instead of pinning it.
func TimeToTrackPercent(t, duration float64, z Zoom) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	pct := (t/duration - z.Start) / z.Span()
	return pct, pct >= 0 && pct <= 1
}

// TrackPercentToTime is the inverse of TimeToTrackPercent.
func TrackPercentToTime(pct, duration float64, z Zoom) float64 {
	return (z.Start + pct*z.Span()) * duration
}

// PixelToPercent converts an x offset inside a track of widthPx pixels.
func PixelToPercent(px, widthPx float64) float64 {
	if widthPx <= 0 {
		return 0
	}
	return px / widthPx
}

func PercentToPixel(pct, widthPx float64) float64 {
	return pct * widthPx
}

// PixelToTime converts a pointer x offset to an absolute time.
func PixelToTime(px, widthPx, duration float64, z Zoom) float64 {
	return TrackPercentToTime(PixelToPercent(px, widthPx), duration, z)
}

// TimeToPixel converts an absolute time to an x offset on the track.
func TimeToPixel(t, widthPx, duration float64, z Zoom) (float64, bool) {
	pct, visible := TimeToTrackPercent(t, duration, z)
	return PercentToPixel(pct, widthPx), visible
}

// ImageTransform describes how the full-range waveform image is stretched
// and shifted so the zoom window fills the track.
type ImageTransform struct {
	Scale         float64 `json:"scale"`
	OffsetPercent float64 `json:"offset_percent"`
}

// FullImageTransform returns the scaling applied to the full image in
// ModeFull.
func FullImageTransform(z Zoom) ImageTransform {
	return ImageTransform{
		Scale:         1 / z.Span(),
		OffsetPercent: -z.Start / z.Span(),
	}
}

// Project maps a fraction of the full image onto the track.
func (it ImageTransform) Project(imageFrac float64) float64 {
	return imageFrac*it.Scale + it.OffsetPercent
}

// PlayheadPercent positions the playhead for the given mode.
func PlayheadPercent(mode Mode, t, duration float64, z Zoom) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	if mode == ModeRegenerated {
		return TimeToTrackPercent(t, duration, z)
	}
	pct := FullImageTransform(z).Project(t / duration)
	return pct, pct >= 0 && pct <= 1
}
