package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuildArgs_Trim(t *testing.T) {
	args, cleanup, err := BuildArgs(Descriptor{
		Op:     OpTrim,
		Inputs: []string{"in.mp4"},
		Output: "out.mp4",
		Params: TrimParams{Start: 1.5, Duration: 2, StreamCopy: true},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	defer cleanup()

	want := []string{"-hide_banner", "-nostdin", "-y", "-ss", "1.5", "-i", "in.mp4", "-t", "2",
		"-c", "copy", "-avoid_negative_ts", "make_zero", "out.mp4"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args =\n  %v\nwant\n  %v", args, want)
	}
}

func TestBuildArgs_ConcatWritesList(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "joined.mp4")
	args, cleanup, err := BuildArgs(Descriptor{
		Op:     OpConcat,
		Inputs: []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")},
		Output: out,
		Params: ConcatParams{},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}

	list := out + ".concat.txt"
	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatalf("concat list not written: %v", err)
	}
	if !strings.Contains(string(data), "a.mp4") || !strings.Contains(string(data), "b.mp4") {
		t.Errorf("list content = %q", data)
	}
	if args[len(args)-1] != out {
		t.Errorf("last arg = %q, want output", args[len(args)-1])
	}

	cleanup()
	if _, err := os.Stat(list); !os.IsNotExist(err) {
		t.Error("cleanup should remove the concat list")
	}
}

func TestBuildArgs_SpeedWithoutAudio(t *testing.T) {
	args, _, err := BuildArgs(Descriptor{
		Op:     OpSpeed,
		Inputs: []string{"in.mp4"},
		Output: "out.mp4",
		Params: SpeedParams{Factor: 2},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-filter:v setpts=0.5*PTS") {
		t.Errorf("missing video filter: %s", joined)
	}
	if strings.Contains(joined, "atempo") {
		t.Errorf("audio filter applied to silent input: %s", joined)
	}
}

func TestBuildArgs_MergeWithoutTransitionIsConcat(t *testing.T) {
	dir := t.TempDir()
	args, cleanup, err := BuildArgs(Descriptor{
		Op:     OpMerge,
		Inputs: []string{"a.mp4", "b.mp4"},
		Output: filepath.Join(dir, "m.mp4"),
		Params: MergeParams{Transition: Transition{Kind: TransitionNone}, Durations: []float64{3, 4}},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	defer cleanup()
	if !strings.Contains(strings.Join(args, " "), "-f concat -safe 0") {
		t.Errorf("expected concat demuxer, got %v", args)
	}
}

func TestBuildArgs_AudioInsertMapsGraph(t *testing.T) {
	args, _, err := BuildArgs(Descriptor{
		Op:     OpAudioInsert,
		Inputs: []string{"base.mp4", "music.mp3"},
		Output: "out.mp4",
		Params: AudioInsertParams{Mode: InsertMix, Start: 1, Volume: 1, SourceDuration: 2, BaseHasAudio: true, BaseDuration: 5},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, frag := range []string{"-i base.mp4 -i music.mp3", "-map 0:v -map [aout]", "-c:v copy"} {
		if !strings.Contains(joined, frag) {
			t.Errorf("args missing %q: %s", frag, joined)
		}
	}
}

func TestBuildArgs_Filter(t *testing.T) {
	args, cleanup, err := BuildArgs(Descriptor{
		Op:     OpFilter,
		Inputs: []string{"in.mp4"},
		Output: "out.mp4",
		Params: FilterParams{Name: FilterBlur, Value: 3.5},
	})
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	defer cleanup()

	want := []string{"-hide_banner", "-nostdin", "-y", "-i", "in.mp4", "-vf", "gblur=sigma=3.5", "-c:a", "copy", "out.mp4"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args =\n  %v\nwant\n  %v", args, want)
	}

	if _, _, err := BuildArgs(Descriptor{Op: OpFilter, Inputs: []string{"in.mp4"}, Output: "o.mp4", Params: FilterParams{Name: "sepia"}}); err == nil {
		t.Error("unknown filter accepted")
	}
}

func TestBuildArgs_InputCountMismatch(t *testing.T) {
	_, _, err := BuildArgs(Descriptor{Op: OpTrim, Output: "o.mp4", Params: TrimParams{Duration: 1}})
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestFFmpegExecutor_NonZeroExitIsCodecError(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exe := NewFFmpegExecutor("false", 0, logger)

	_, err := exe.Invoke(context.Background(), Descriptor{
		Op:     OpVolume,
		Inputs: []string{"in.mp4"},
		Output: filepath.Join(dir, "out.mp4"),
		Params: VolumeParams{Factor: 2},
	})
	if err == nil {
		t.Skip("'false' binary unavailable or succeeded")
	}
	var ce *CodecExecutionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CodecExecutionError, got %T: %v", err, err)
	}
	if ce.Op != OpVolume {
		t.Errorf("Op = %q, want %q", ce.Op, OpVolume)
	}
}
