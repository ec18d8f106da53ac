package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kioskmedia/timeline-agent/internal/media"
)

const (
	maxClipNameLen    = 160
	maxProjectNameLen = 120
	maxProbeWorkers   = 4
)

// mergeParams is the subset of a recorded merge the export needs.
type mergeParams struct {
	Clips      []string `json:"clips"`
	Transition struct {
		Kind     string  `json:"kind"`
		Duration float64 `json:"duration"`
	} `json:"transition"`
}

// MergeClips rebuilds the clip list of a recorded merge from its stored
// parameters. Clips that can no longer be probed are returned by path in
// unresolved and left out of the list. A crossfade becomes a dissolve.
func MergeClips(ctx context.Context, prober media.Prober, params string) (clips []Clip, unresolved []string, dissolve Dissolve, err error) {
	var p mergeParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, nil, Dissolve{}, fmt.Errorf("decode merge parameters: %w", err)
	}
	if len(p.Clips) == 0 {
		return nil, nil, Dissolve{}, fmt.Errorf("merge has no clips")
	}

	metas := make([]*media.Metadata, len(p.Clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProbeWorkers)
	for i, path := range p.Clips {
		i, path := i, path
		g.Go(func() error {
			m, err := prober.Inspect(gctx, path)
			if err != nil {
				// Unreadable clips are reported, not fatal.
				return nil
			}
			metas[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, Dissolve{}, err
	}

	for i, path := range p.Clips {
		if metas[i] == nil || metas[i].DurationSeconds <= 0 {
			unresolved = append(unresolved, path)
			continue
		}
		clips = append(clips, Clip{
			Name:      ClipName(path),
			MediaPath: path,
			End:       metas[i].DurationSeconds,
		})
	}
	if p.Transition.Kind == string(media.TransitionCrossfade) {
		dissolve.Seconds = p.Transition.Duration
	}
	return clips, unresolved, dissolve, nil
}

// SelectionClip describes the span [start, end) of the file at path.
func SelectionClip(path string, start, end float64) (Clip, error) {
	if end <= start {
		return Clip{}, fmt.Errorf("selection end must be after start")
	}
	return Clip{Name: ClipName(path), MediaPath: path, Start: start, End: end}, nil
}

// ClipName derives an event name from a media path.
func ClipName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if name := SanitizeName(base, maxClipNameLen); name != "" {
		return name
	}
	return "clip"
}

// ProjectName sanitises name, falling back to fallback when nothing usable
// is left.
func ProjectName(name, fallback string) string {
	if n := SanitizeName(name, maxProjectNameLen); n != "" {
		return n
	}
	return fallback
}
