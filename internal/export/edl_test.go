package export

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kioskmedia/timeline-agent/internal/media"
)

func TestGenerateEDL_SingleClip(t *testing.T) {
	clips := []Clip{{Name: "Intro", MediaPath: "/media/intro.mp4", Start: 0, End: 2}}

	edl := GenerateEDL(clips, "Project One", 30.0, Dissolve{})

	if !strings.Contains(edl, "TITLE: Project One") {
		t.Fatalf("missing title in EDL: %q", edl)
	}
	if !strings.Contains(edl, "FCM: NON-DROP FRAME") {
		t.Fatalf("missing non-drop-frame FCM: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00") {
		t.Fatalf("missing event line: %q", edl)
	}
	if !strings.Contains(edl, "* FROM CLIP NAME:  Intro") {
		t.Fatalf("missing clip name comment: %q", edl)
	}
	if !strings.Contains(edl, "* MEDIA PATH:  /media/intro.mp4") {
		t.Fatalf("missing media path comment: %q", edl)
	}
}

func TestGenerateEDL_MultipleClips(t *testing.T) {
	clips := []Clip{
		{Name: "Clip A", MediaPath: "/a.mp4", Start: 0, End: 1},
		{Name: "Clip B", MediaPath: "/b.mp4", Start: 1, End: 2.5},
	}

	edl := GenerateEDL(clips, "Multi", 30.0, Dissolve{})

	if !strings.Contains(edl, "001  AX       V     C        00:00:00:00 00:00:01:00 00:00:00:00 00:00:01:00") {
		t.Fatalf("first event line mismatch: %q", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        00:00:01:00 00:00:02:15 00:00:01:00 00:00:02:15") {
		t.Fatalf("second event line mismatch or bad record offset: %q", edl)
	}
}

func TestGenerateEDL_DissolveOverlapsRecord(t *testing.T) {
	clips := []Clip{
		{Name: "A", MediaPath: "/a.mp4", End: 2},
		{Name: "B", MediaPath: "/b.mp4", End: 2},
	}

	edl := GenerateEDL(clips, "X", 30.0, Dissolve{Seconds: 0.5})

	if !strings.Contains(edl, "002  AX       V     D    015 00:00:00:00 00:00:02:00 00:00:01:15 00:00:03:15") {
		t.Fatalf("dissolve event mismatch: %q", edl)
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	clips := []Clip{{Name: "Clip", MediaPath: "/x.mp4", End: 1}}
	edl := GenerateEDL(clips, "Drop", 29.97, Dissolve{})

	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
}

func TestTimecode(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		fps     int
		want    string
	}{
		{name: "zero", seconds: 0, fps: 30, want: "00:00:00:00"},
		{name: "one second", seconds: 1, fps: 30, want: "00:00:01:00"},
		{name: "fractional second", seconds: 0.5, fps: 30, want: "00:00:00:15"},
		{name: "one minute", seconds: 60, fps: 30, want: "00:01:00:00"},
		{name: "one hour", seconds: 3600, fps: 30, want: "01:00:00:00"},
		{name: "25 fps", seconds: 1.2, fps: 25, want: "00:00:01:05"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := timecode(toFrames(tc.seconds, tc.fps), tc.fps)
			if got != tc.want {
				t.Fatalf("timecode(%v, %d) = %q, want %q", tc.seconds, tc.fps, got, tc.want)
			}
		})
	}
}

type fakeProber map[string]float64

func (f fakeProber) Inspect(ctx context.Context, path string) (*media.Metadata, error) {
	d, ok := f[path]
	if !ok {
		return nil, &media.ProbeError{Path: path, Err: fmt.Errorf("no such file")}
	}
	return &media.Metadata{DurationSeconds: d}, nil
}

func TestMergeClips(t *testing.T) {
	prober := fakeProber{"/clips/a.mp4": 4, "/clips/c.mp4": 6}
	params := `{"clips":["/clips/a.mp4","/clips/gone.mp4","/clips/c.mp4"],"transition":{"kind":"crossfade","duration":0.5}}`

	clips, unresolved, dissolve, err := MergeClips(context.Background(), prober, params)
	if err != nil {
		t.Fatalf("MergeClips: %v", err)
	}
	if len(clips) != 2 || clips[0].Name != "a" || clips[1].End != 6 {
		t.Errorf("clips = %+v", clips)
	}
	if len(unresolved) != 1 || unresolved[0] != "/clips/gone.mp4" {
		t.Errorf("unresolved = %v", unresolved)
	}
	if dissolve.Seconds != 0.5 {
		t.Errorf("dissolve = %v, want 0.5", dissolve.Seconds)
	}
}

func TestMergeClips_BadParams(t *testing.T) {
	if _, _, _, err := MergeClips(context.Background(), fakeProber{}, `not json`); err == nil {
		t.Error("expected decode error")
	}
	if _, _, _, err := MergeClips(context.Background(), fakeProber{}, `{"clips":[]}`); err == nil {
		t.Error("expected error for empty merge")
	}
}

func TestSelectionClip(t *testing.T) {
	c, err := SelectionClip("/work/My Clip?.mp4", 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "My Clip_" || c.Start != 2 || c.End != 5 {
		t.Errorf("clip = %+v", c)
	}
	if _, err := SelectionClip("/a.mp4", 5, 5); err == nil {
		t.Error("empty selection accepted")
	}
}

func TestProjectName(t *testing.T) {
	if got := ProjectName("\x00\x01", "timeline_export"); got != "timeline_export" {
		t.Errorf("ProjectName fallback = %q", got)
	}
	if got := ProjectName("Cut 1", "x"); got != "Cut 1" {
		t.Errorf("ProjectName = %q", got)
	}
}
