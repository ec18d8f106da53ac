package editor

import (
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/selection"
	"github.com/kioskmedia/timeline-agent/internal/session"
	"github.com/kioskmedia/timeline-agent/internal/timeline"
	"github.com/kioskmedia/timeline-agent/internal/waveform"
)

// Snapshot is a read-only view model of the editor.
type Snapshot struct {
	Session         *session.Info                               `json:"session,omitempty"`
	FileName        string                                      `json:"file_name,omitempty"`
	Size            string                                      `json:"size,omitempty"`
	Tool            selection.Tool                              `json:"tool"`
	Gesture         string                                      `json:"gesture"`
	Zoom            timeline.Zoom                               `json:"zoom"`
	Playhead        float64                                     `json:"playhead"`
	PlayheadPercent float64                                     `json:"playhead_percent"`
	PlayheadVisible bool                                        `json:"playhead_visible"`
	Selections      map[selection.Tool]selection.SelectionRange `json:"selections"`
	Overlays        map[selection.Tool]selection.Overlay        `json:"overlays,omitempty"`
	Options         Options                                     `json:"options"`
	Waveform        WaveformView                                `json:"waveform"`
	Busy            edit.Kind                                   `json:"busy,omitempty"`
	Progress        *media.Progress                             `json:"progress,omitempty"`
}

// WaveformView is the waveform state without the image payload.
type WaveformView struct {
	Mode      timeline.Mode           `json:"mode"`
	ImageZoom timeline.Zoom           `json:"image_zoom"`
	HasImage  bool                    `json:"has_image"`
	Pending   bool                    `json:"pending"`
	Transform timeline.ImageTransform `json:"transform"`
}

func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf := e.regen.Snapshot()

	s := Snapshot{
		Tool:       e.ctrl.Tool(),
		Gesture:    e.ctrl.State().String(),
		Zoom:       e.zoom,
		Playhead:   e.playhead,
		Selections: make(map[selection.Tool]selection.SelectionRange, len(e.selections)),
		Options:    Options{Trim: e.trim, Text: e.text, Audio: e.audio},
		Waveform: WaveformView{
			Mode:      wf.Mode,
			ImageZoom: wf.ImageZoom,
			HasImage:  wf.Image != "",
			Pending:   wf.InFlight != nil,
			Transform: wf.Transform,
		},
		Busy: e.busy,
	}
	if e.progress != nil {
		p := *e.progress
		s.Progress = &p
	}
	for t, r := range e.selections {
		s.Selections[t] = r
	}
	if e.sess == nil {
		return s
	}

	info := e.sess.Info()
	s.Session = &info
	s.FileName = filepath.Base(info.ActivePath)
	if info.Metadata != nil {
		s.Size = humanize.Bytes(uint64(info.Metadata.SizeBytes))
	}

	duration := e.durationLocked()
	// Placed against the window the waveform image is drawn for.
	s.PlayheadPercent, s.PlayheadVisible = timeline.PlayheadPercent(wf.Mode, e.playhead, duration, wf.Zoom)

	if e.widthPx > 0 {
		vp := e.viewportLocked()
		s.Overlays = make(map[selection.Tool]selection.Overlay, len(e.selections))
		for t, r := range e.selections {
			s.Overlays[t] = selection.OverlayFor(r, vp)
		}
	}
	return s
}

// Waveform returns the full display state including the image.
func (e *Editor) Waveform() waveform.State {
	return e.regen.Snapshot()
}
