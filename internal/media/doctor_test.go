package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoctor_TTL(t *testing.T) {
	calls := 0
	version := func(ctx context.Context, binary string) (string, error) {
		calls++
		return binary + " version 6.1", nil
	}
	d := NewDoctor("ffmpeg", "ffprobe", version, testLogger())

	caps, err := d.Get(context.Background())
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !caps.Ready() {
		t.Errorf("expected ready capabilities, got %+v", caps)
	}
	if calls != 2 {
		t.Fatalf("expected 2 version calls, got %d", calls)
	}

	if _, err := d.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("cached Get should not re-probe, calls = %d", calls)
	}

	d.Invalidate()
	if d.Peek() != nil {
		t.Error("Peek after Invalidate should be nil")
	}
	if _, err := d.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 4 {
		t.Errorf("Get after Invalidate should re-probe, calls = %d", calls)
	}
}

func TestDoctor_Expired(t *testing.T) {
	calls := 0
	d := NewDoctor("ffmpeg", "ffprobe", func(ctx context.Context, binary string) (string, error) {
		calls++
		return "v", nil
	}, testLogger())
	d.ttl = time.Millisecond

	d.Get(context.Background())
	time.Sleep(5 * time.Millisecond)
	d.Get(context.Background())
	if calls != 4 {
		t.Errorf("expired cache should re-probe, calls = %d", calls)
	}
}

func TestDoctor_StaleFallback(t *testing.T) {
	fail := false
	d := NewDoctor("ffmpeg", "ffprobe", func(ctx context.Context, binary string) (string, error) {
		if fail {
			return "", errors.New("exec: not found")
		}
		return "v", nil
	}, testLogger())

	first, err := d.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	fail = true
	got, err := d.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected stale cache, got error %v", err)
	}
	if got != first {
		t.Error("expected the previously cached capabilities")
	}
}

func TestDoctor_NoCacheFailure(t *testing.T) {
	d := NewDoctor("ffmpeg", "", func(ctx context.Context, binary string) (string, error) {
		return "", errors.New("missing")
	}, testLogger())

	caps, err := d.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected error without cache")
	}
	if caps == nil || caps.FFprobe.Error != "not configured" {
		t.Errorf("unexpected capabilities %+v", caps)
	}
}
