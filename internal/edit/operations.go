// Package edit validates edit operations and runs them against the media
// engine, replacing the session's active artifact on success.
package edit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kioskmedia/timeline-agent/internal/media"
)

// MinPartSeconds is the shortest clip the engine is asked to produce.
const MinPartSeconds = 0.1

// tolerance absorbs float noise when comparing against probed durations.
const tolerance = 1e-6

// Kind names an operation.
type Kind string

const (
	KindTrim         Kind = "trim"
	KindDeleteRange  Kind = "delete_range"
	KindSpeed        Kind = "speed"
	KindVolume       Kind = "volume"
	KindText         Kind = "text"
	KindAudioInsert  Kind = "audio_insert"
	KindMerge        Kind = "merge"
	KindExtractAudio Kind = "extract_audio"
	KindFilter       Kind = "filter"
)

// Operation is one user-requested edit.
type Operation interface {
	Kind() Kind
	// Validate checks the operation against the active artifact's metadata.
	Validate(meta *media.Metadata) error
}

// Trim keeps [Start, Start+Duration).
type Trim struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (Trim) Kind() Kind { return KindTrim }

func (o Trim) Validate(meta *media.Metadata) error {
	total, err := totalDuration(KindTrim, meta)
	if err != nil {
		return err
	}
	if !finite(o.Start, o.Duration) {
		return invalid(KindTrim, "", "bounds must be finite")
	}
	if o.Start < 0 || o.Start >= total {
		return invalid(KindTrim, "start", "must be in [0, %.3f), got %.3f", total, o.Start)
	}
	if o.Duration < MinPartSeconds {
		return invalid(KindTrim, "duration", "must be at least %.1fs, got %.3f", MinPartSeconds, o.Duration)
	}
	if o.Start+o.Duration > total+tolerance {
		return invalid(KindTrim, "duration", "runs past the end (%.3f > %.3f)", o.Start+o.Duration, total)
	}
	return nil
}

// DeleteRange removes [Start, End) and splices the remainder.
type DeleteRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (DeleteRange) Kind() Kind { return KindDeleteRange }

func (o DeleteRange) Validate(meta *media.Metadata) error {
	total, err := totalDuration(KindDeleteRange, meta)
	if err != nil {
		return err
	}
	if !finite(o.Start, o.End) {
		return invalid(KindDeleteRange, "", "bounds must be finite")
	}
	if o.Start < 0 {
		return invalid(KindDeleteRange, "start", "must not be negative")
	}
	if o.End <= o.Start {
		return invalid(KindDeleteRange, "end", "must be after start")
	}
	if o.End > total+tolerance {
		return invalid(KindDeleteRange, "end", "must not exceed %.3f", total)
	}
	head, tail := o.parts(total)
	if !head && !tail {
		return invalid(KindDeleteRange, "", "deleting the whole clip leaves nothing")
	}
	return nil
}

// parts reports which remainders are long enough to keep.
func (o DeleteRange) parts(total float64) (head, tail bool) {
	return o.Start >= MinPartSeconds, total-o.End >= MinPartSeconds
}

// SpeedChange retimes video and audio by Factor.
type SpeedChange struct {
	Factor float64 `json:"factor"`
}

func (SpeedChange) Kind() Kind { return KindSpeed }

func (o SpeedChange) Validate(meta *media.Metadata) error {
	if _, err := totalDuration(KindSpeed, meta); err != nil {
		return err
	}
	if !finite(o.Factor) || o.Factor <= 0 {
		return invalid(KindSpeed, "factor", "must be positive, got %v", o.Factor)
	}
	return nil
}

// VolumeChange scales the audio track by Factor.
type VolumeChange struct {
	Factor float64 `json:"factor"`
}

func (VolumeChange) Kind() Kind { return KindVolume }

func (o VolumeChange) Validate(meta *media.Metadata) error {
	if _, err := totalDuration(KindVolume, meta); err != nil {
		return err
	}
	if !finite(o.Factor) || o.Factor <= 0 {
		return invalid(KindVolume, "factor", "must be positive, got %v", o.Factor)
	}
	if !meta.HasAudio() {
		return invalid(KindVolume, "", "clip has no audio track")
	}
	return nil
}

// TextOverlay draws Content over [Start, End), or the whole clip when both
// are omitted.
type TextOverlay struct {
	Content  string          `json:"content"`
	Style    media.TextStyle `json:"style"`
	Position string          `json:"position,omitempty"`
	Start    *float64        `json:"start,omitempty"`
	End      *float64        `json:"end,omitempty"`
}

func (TextOverlay) Kind() Kind { return KindText }

func (o TextOverlay) Validate(meta *media.Metadata) error {
	total, err := totalDuration(KindText, meta)
	if err != nil {
		return err
	}
	if strings.TrimSpace(o.Content) == "" {
		return invalid(KindText, "content", "must not be empty")
	}
	if _, ok := media.PositionPreset(o.Position); !ok {
		return invalid(KindText, "position", "unknown preset %q", o.Position)
	}
	start, end, timed := o.window(total)
	if !timed {
		return nil
	}
	if !finite(start, end) || start < 0 {
		return invalid(KindText, "start", "must be a non-negative time")
	}
	if end <= start {
		return invalid(KindText, "end", "must be after start")
	}
	if start >= total {
		return invalid(KindText, "start", "must be before the end of the clip")
	}
	return nil
}

// window resolves the overlay interval. A single given bound is completed
// with the clip start or end.
func (o TextOverlay) window(total float64) (start, end float64, timed bool) {
	if o.Start == nil && o.End == nil {
		return 0, total, false
	}
	start, end = 0, total
	if o.Start != nil {
		start = *o.Start
	}
	if o.End != nil {
		end = *o.End
	}
	return start, end, true
}

// AudioInsert places Source's audio at Start.
type AudioInsert struct {
	Source string           `json:"source"`
	Start  float64          `json:"start"`
	Mode   media.InsertMode `json:"mode"`
	Volume float64          `json:"volume,omitempty"`
}

func (AudioInsert) Kind() Kind { return KindAudioInsert }

func (o AudioInsert) Validate(meta *media.Metadata) error {
	total, err := totalDuration(KindAudioInsert, meta)
	if err != nil {
		return err
	}
	if strings.TrimSpace(o.Source) == "" {
		return invalid(KindAudioInsert, "source", "is required")
	}
	if !o.Mode.Valid() {
		return invalid(KindAudioInsert, "mode", "must be mix, overwrite or push, got %q", o.Mode)
	}
	if !finite(o.Start, o.Volume) {
		return invalid(KindAudioInsert, "", "values must be finite")
	}
	if o.Start < 0 {
		return invalid(KindAudioInsert, "start", "must not be negative")
	}
	if o.Volume < 0 {
		return invalid(KindAudioInsert, "volume", "must not be negative")
	}
	// push may append at the very end; mix and overwrite need audible overlap.
	if o.Mode == media.InsertPush {
		if o.Start > total+tolerance {
			return invalid(KindAudioInsert, "start", "must not exceed %.3f", total)
		}
	} else if o.Start >= total {
		return invalid(KindAudioInsert, "start", "must be before %.3f", total)
	}
	return nil
}

func (o AudioInsert) volume() float64 {
	if o.Volume == 0 {
		return 1
	}
	return o.Volume
}

// filterRanges bounds each filter's value, inclusive.
var filterRanges = map[media.FilterName][2]float64{
	media.FilterBrightness: {-1, 1},
	media.FilterContrast:   {0, 3},
	media.FilterSaturation: {0, 3},
	media.FilterBlur:       {0, 10},
	media.FilterSharpen:    {0, 3},
	media.FilterRotate:     {-360, 360},
}

// Filter applies one video filter to the whole clip.
type Filter struct {
	Name  media.FilterName `json:"name"`
	Value float64          `json:"value"`
}

func (Filter) Kind() Kind { return KindFilter }

func (o Filter) Validate(meta *media.Metadata) error {
	if _, err := totalDuration(KindFilter, meta); err != nil {
		return err
	}
	if !meta.HasVideo() {
		return invalid(KindFilter, "", "clip has no video stream")
	}
	bounds, ok := filterRanges[o.Name]
	if !ok {
		return invalid(KindFilter, "name", "unknown filter %q", o.Name)
	}
	if !finite(o.Value) || o.Value < bounds[0] || o.Value > bounds[1] {
		return invalid(KindFilter, "value", "must be in [%g, %g] for %s, got %g", bounds[0], bounds[1], o.Name, o.Value)
	}
	return nil
}

// Merge joins clips in order. With IncludeActive the session's active
// artifact is the first clip.
type Merge struct {
	Clips         []string         `json:"clips"`
	Transition    media.Transition `json:"transition"`
	IncludeActive bool             `json:"include_active"`
}

func (Merge) Kind() Kind { return KindMerge }

func (o Merge) Validate(meta *media.Metadata) error {
	n := len(o.Clips)
	if o.IncludeActive {
		if _, err := totalDuration(KindMerge, meta); err != nil {
			return err
		}
		n++
	}
	if n < 2 {
		return invalid(KindMerge, "clips", "needs at least two clips, got %d", n)
	}
	for i, c := range o.Clips {
		if strings.TrimSpace(c) == "" {
			return invalid(KindMerge, "clips", "clip %d has no path", i)
		}
	}
	switch o.Transition.Kind {
	case "", media.TransitionNone:
	case media.TransitionFade, media.TransitionCrossfade:
		if !finite(o.Transition.Duration) || o.Transition.Duration <= 0 {
			return invalid(KindMerge, "transition.duration", "must be positive")
		}
	default:
		return invalid(KindMerge, "transition.kind", "unknown transition %q", o.Transition.Kind)
	}
	return nil
}

// validateDurations checks the transition against probed clip durations.
// Interior clips are overlapped at both ends, so they must outlast two
// transitions.
func (o Merge) validateDurations(durations []float64) error {
	if o.Transition.Kind != media.TransitionFade && o.Transition.Kind != media.TransitionCrossfade {
		return nil
	}
	d := o.Transition.Duration
	for i, dur := range durations {
		need := d
		if i > 0 && i < len(durations)-1 {
			need = 2 * d
		}
		if dur <= need {
			return invalid(KindMerge, "transition.duration", "%.2fs is too long for clip %d (%.2fs)", d, i, dur)
		}
	}
	return nil
}

// Decode builds an Operation from its kind and JSON parameters.
func Decode(kind Kind, raw json.RawMessage) (Operation, error) {
	var op Operation
	switch kind {
	case KindTrim:
		op = &Trim{}
	case KindDeleteRange:
		op = &DeleteRange{}
	case KindSpeed:
		op = &SpeedChange{}
	case KindVolume:
		op = &VolumeChange{}
	case KindText:
		op = &TextOverlay{}
	case KindAudioInsert:
		op = &AudioInsert{}
	case KindMerge:
		op = &Merge{}
	case KindFilter:
		op = &Filter{}
	default:
		return nil, &ValidationError{Op: kind, Reason: "unknown operation"}
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, op); err != nil {
			return nil, invalid(kind, "", "invalid parameters: %v", err)
		}
	}
	return deref(op), nil
}

func deref(op Operation) Operation {
	switch o := op.(type) {
	case *Trim:
		return *o
	case *DeleteRange:
		return *o
	case *SpeedChange:
		return *o
	case *VolumeChange:
		return *o
	case *TextOverlay:
		return *o
	case *AudioInsert:
		return *o
	case *Merge:
		return *o
	case *Filter:
		return *o
	}
	return op
}

func totalDuration(op Kind, meta *media.Metadata) (float64, error) {
	if meta == nil || meta.DurationSeconds <= 0 {
		return 0, invalid(op, "", "no media loaded")
	}
	return meta.DurationSeconds, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// describe renders the operation for logs and the history table.
func describe(op Operation) string {
	b, err := json.Marshal(op)
	if err != nil {
		return fmt.Sprintf("%+v", op)
	}
	return string(b)
}
