package timeline

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func TestRoundTrip_TimeToPercentToTime(t *testing.T) {
	zooms := []Zoom{
		{0, 1},
		{0.2, 0.4},
		{0.5, 0.6},
		{0, 0.01},
		{0.99, 1},
		{0.123, 0.877},
	}
	durations := []float64{0.5, 10, 100, 3600.25}

	for _, z := range zooms {
		for _, d := range durations {
			for i := 0; i <= 20; i++ {
				tm := z.StartTime(d) + float64(i)/20*(z.EndTime(d)-z.StartTime(d))
				pct, visible := TimeToTrackPercent(tm, d, z)
				if !visible && (pct < -tolerance || pct > 1+tolerance) {
					t.Fatalf("time %.6f inside zoom %+v reported off-screen (pct=%.9f)", tm, z, pct)
				}
				back := TrackPercentToTime(pct, d, z)
				if math.Abs(back-tm) > tolerance*math.Max(1, d) {
					t.Errorf("zoom %+v duration %.2f: round trip %.9f -> %.9f -> %.9f", z, d, tm, pct, back)
				}
			}
		}
	}
}

func TestTimeToTrackPercent_OffscreenNotClamped(t *testing.T) {
	z := Zoom{Start: 0.5, End: 0.6}

	pct, visible := TimeToTrackPercent(10, 100, z)
	if visible {
		t.Fatal("time before the window should be hidden")
	}
	if pct >= 0 {
		t.Errorf("pct = %.4f, want negative (unclamped)", pct)
	}

	pct, visible = TimeToTrackPercent(90, 100, z)
	if visible {
		t.Fatal("time after the window should be hidden")
	}
	if math.Abs(pct-4) > tolerance {
		t.Errorf("pct = %.4f, want 4", pct)
	}
}

func TestTimeToTrackPercent_ZeroDuration(t *testing.T) {
	if _, visible := TimeToTrackPercent(1, 0, FullZoom()); visible {
		t.Fatal("zero duration should never be visible")
	}
}

func TestNewZoom(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		wantErr    error
	}{
		{"full", 0, 1, nil},
		{"narrow ok", 0.2, 0.21, nil},
		{"degenerate", 0.2, 0.205, ErrDegenerateZoom},
		{"inverted", 0.6, 0.5, ErrZoomOutOfBounds},
		{"equal", 0.5, 0.5, ErrZoomOutOfBounds},
		{"negative start", -0.1, 0.5, ErrZoomOutOfBounds},
		{"end beyond one", 0.5, 1.2, ErrZoomOutOfBounds},
		{"nan", math.NaN(), 0.5, ErrZoomOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZoom(tt.start, tt.end)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewZoom(%v, %v) error = %v", tt.start, tt.end, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewZoom(%v, %v) error = %v, want %v", tt.start, tt.end, err, tt.wantErr)
			}
		})
	}
}

func TestZoom_Narrow(t *testing.T) {
	z := Zoom{Start: 0.2, End: 0.6}

	got, err := z.Narrow(0.75, 0.25)
	if err != nil {
		t.Fatalf("Narrow error = %v", err)
	}
	if math.Abs(got.Start-0.3) > tolerance || math.Abs(got.End-0.5) > tolerance {
		t.Errorf("Narrow = %+v, want {0.3 0.5}", got)
	}

	if _, err := z.Narrow(0.5, 0.51); !errors.Is(err, ErrDegenerateZoom) {
		t.Errorf("Narrow tiny span error = %v, want ErrDegenerateZoom", err)
	}
}

func TestPlayheadPercent_ModesAgree(t *testing.T) {
	z := Zoom{Start: 0.25, End: 0.75}
	for _, tm := range []float64{0, 20, 25, 50, 74.9, 99} {
		full, fullVisible := PlayheadPercent(ModeFull, tm, 100, z)
		regen, regenVisible := PlayheadPercent(ModeRegenerated, tm, 100, z)
		if math.Abs(full-regen) > tolerance || fullVisible != regenVisible {
			t.Errorf("t=%.1f: full=(%.6f,%v) regenerated=(%.6f,%v)", tm, full, fullVisible, regen, regenVisible)
		}
	}
}

func TestPixelConversions(t *testing.T) {
	z := Zoom{Start: 0.5, End: 1}
	got := PixelToTime(500, 1000, 100, z)
	if math.Abs(got-75) > tolerance {
		t.Errorf("PixelToTime = %.4f, want 75", got)
	}
	px, visible := TimeToPixel(75, 1000, 100, z)
	if !visible || math.Abs(px-500) > tolerance {
		t.Errorf("TimeToPixel = (%.4f,%v), want (500,true)", px, visible)
	}
	if PixelToPercent(10, 0) != 0 {
		t.Error("zero width should map to 0")
	}
}
