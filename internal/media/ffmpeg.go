package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Executor runs edit descriptors against the external engine.
type Executor interface {
	Invoke(ctx context.Context, d Descriptor) (Result, error)
}

// FFmpegExecutor is the production Executor backed by an ffmpeg binary.
type FFmpegExecutor struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewFFmpegExecutor(binary string, timeout time.Duration, logger *slog.Logger) *FFmpegExecutor {
	return &FFmpegExecutor{binary: binary, timeout: timeout, logger: logger}
}

// Invoke builds the ffmpeg command line for d, runs it and checks that the
// output file was produced.
func (e *FFmpegExecutor) Invoke(ctx context.Context, d Descriptor) (Result, error) {
	if d.Output == "" {
		return Result{}, &CodecExecutionError{Op: d.Op, ExitCode: -1, Err: fmt.Errorf("no output path")}
	}
	if err := os.MkdirAll(filepath.Dir(d.Output), 0755); err != nil {
		return Result{}, &CodecExecutionError{Op: d.Op, ExitCode: -1, Err: err}
	}

	args, cleanup, err := BuildArgs(d)
	if err != nil {
		return Result{}, &CodecExecutionError{Op: d.Op, ExitCode: -1, Err: err}
	}
	defer cleanup()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var progress *progressWriter
	var tap io.Writer
	if fn := ProgressFrom(ctx); fn != nil {
		progress = newProgressWriter(d, fn)
		tap = progress
	}

	out := run(ctx, e.logger, e.binary, false, tap, args...)
	if out.ExitCode != 0 || out.Err != nil {
		e.logger.Warn("media command failed",
			"op", d.Op,
			"exit_code", out.ExitCode,
			"duration_ms", out.Duration.Milliseconds(),
			"stderr_tail", truncate(out.StderrTail, 512),
		)
		return Result{}, &CodecExecutionError{Op: d.Op, ExitCode: out.ExitCode, StderrTail: out.StderrTail, Err: out.Err}
	}

	if info, err := os.Stat(d.Output); err != nil || info.Size() == 0 {
		return Result{}, &CodecExecutionError{Op: d.Op, ExitCode: 0, StderrTail: out.StderrTail,
			Err: fmt.Errorf("engine reported success but produced no output")}
	}

	if progress != nil {
		progress.done()
	}
	e.logger.Info("media command succeeded",
		"op", d.Op,
		"duration_ms", out.Duration.Milliseconds(),
		"output", filepath.Base(d.Output),
	)
	return Result{OutputPath: d.Output, StderrTail: out.StderrTail, Duration: out.Duration}, nil
}

// BuildArgs translates a descriptor into ffmpeg arguments. The returned
// cleanup removes any helper files written for the invocation.
func BuildArgs(d Descriptor) ([]string, func(), error) {
	noop := func() {}
	args := []string{"-hide_banner", "-nostdin", "-y"}

	switch p := d.Params.(type) {
	case TrimParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("trim expects 1 input, got %d", len(d.Inputs))
		}
		args = append(args, "-ss", sec(p.Start), "-i", d.Inputs[0], "-t", sec(p.Duration))
		if p.StreamCopy {
			args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
		}

	case ConcatParams:
		if len(d.Inputs) < 2 {
			return nil, noop, fmt.Errorf("concat expects at least 2 inputs, got %d", len(d.Inputs))
		}
		listPath := d.Output + ".concat.txt"
		if err := os.WriteFile(listPath, []byte(ConcatList(absPaths(d.Inputs))), 0644); err != nil {
			return nil, noop, fmt.Errorf("write concat list: %w", err)
		}
		args = append(args, "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy")
		args = append(args, d.Output)
		return args, func() { os.Remove(listPath) }, nil

	case SpeedParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("speed expects 1 input, got %d", len(d.Inputs))
		}
		video, audio := SpeedFilters(p.Factor)
		args = append(args, "-i", d.Inputs[0], "-filter:v", video)
		if p.HasAudio {
			args = append(args, "-filter:a", audio)
		}

	case VolumeParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("volume expects 1 input, got %d", len(d.Inputs))
		}
		args = append(args, "-i", d.Inputs[0], "-filter:a", "volume="+num(p.Factor), "-c:v", "copy")

	case DrawTextParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("drawtext expects 1 input, got %d", len(d.Inputs))
		}
		args = append(args, "-i", d.Inputs[0], "-vf", DrawTextFilter(p), "-c:a", "copy")

	case FilterParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("filter expects 1 input, got %d", len(d.Inputs))
		}
		vf, err := VideoFilter(p)
		if err != nil {
			return nil, noop, err
		}
		args = append(args, "-i", d.Inputs[0], "-vf", vf, "-c:a", "copy")

	case AudioInsertParams:
		if len(d.Inputs) != 2 {
			return nil, noop, fmt.Errorf("audio insert expects 2 inputs, got %d", len(d.Inputs))
		}
		g := AudioInsertGraph(p)
		args = append(args, "-i", d.Inputs[0], "-i", d.Inputs[1], "-filter_complex", g.Graph)
		for _, m := range g.Maps {
			args = append(args, "-map", m)
		}
		if g.CopyVideo {
			args = append(args, "-c:v", "copy")
		} else {
			args = append(args, "-c:v", "libx264", "-preset", "medium", "-crf", "23")
		}
		args = append(args, "-c:a", "aac")
		if g.Shortest {
			args = append(args, "-shortest")
		}

	case MergeParams:
		if len(d.Inputs) < 2 || len(d.Inputs) != len(p.Durations) {
			return nil, noop, fmt.Errorf("merge expects >= 2 inputs with durations, got %d/%d", len(d.Inputs), len(p.Durations))
		}
		if p.Transition.Kind == TransitionNone || p.Transition.Kind == "" {
			return BuildArgs(Descriptor{Op: OpConcat, Inputs: d.Inputs, Output: d.Output, Params: ConcatParams{}})
		}
		for _, in := range d.Inputs {
			args = append(args, "-i", in)
		}
		var g FilterGraph
		if p.Transition.Kind == TransitionFade {
			g = FadeGraph(p)
		} else {
			g = CrossfadeGraph(p)
		}
		args = append(args, "-filter_complex", g.Graph)
		for _, m := range g.Maps {
			args = append(args, "-map", m)
		}
		args = append(args, "-c:v", "libx264", "-preset", "medium", "-crf", "23")
		if p.HasAudio {
			args = append(args, "-c:a", "aac")
		}

	case ExtractAudioParams:
		if len(d.Inputs) != 1 {
			return nil, noop, fmt.Errorf("extract audio expects 1 input, got %d", len(d.Inputs))
		}
		codec := p.Codec
		if codec == "" {
			codec = "copy"
		}
		args = append(args, "-i", d.Inputs[0], "-vn", "-c:a", codec)

	default:
		return nil, noop, fmt.Errorf("unsupported opcode %q", d.Op)
	}

	args = append(args, d.Output)
	return args, noop, nil
}

func absPaths(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out[i] = abs
		} else {
			out[i] = p
		}
	}
	return out
}
