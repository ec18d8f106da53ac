package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/kioskmedia/timeline-agent/internal/timeline"
)

const (
	DefaultWaveformWidth  = 1600
	DefaultWaveformHeight = 120
	waveformColor         = "0x4f9dde"
)

// WaveformRenderer draws a waveform PNG with ffmpeg's showwavespic filter.
type WaveformRenderer struct {
	binary  string
	width   int
	height  int
	timeout time.Duration
	logger  *slog.Logger
}

func NewWaveformRenderer(binary string, width, height int, timeout time.Duration, logger *slog.Logger) *WaveformRenderer {
	if width <= 0 {
		width = DefaultWaveformWidth
	}
	if height <= 0 {
		height = DefaultWaveformHeight
	}
	return &WaveformRenderer{binary: binary, width: width, height: height, timeout: timeout, logger: logger}
}

// Render returns a base64-encoded PNG of the whole file, or of r when given.
func (w *WaveformRenderer) Render(ctx context.Context, path string, r *timeline.Range) (string, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out := run(ctx, w.logger, w.binary, true, nil, w.args(path, r)...)
	if out.Err != nil {
		return "", &RenderError{Path: path, Err: out.Err}
	}
	if out.ExitCode != 0 {
		return "", &RenderError{Path: path, Err: fmt.Errorf("ffmpeg exited %d: %s", out.ExitCode, lastLine(out.StderrTail))}
	}
	if len(out.Stdout) == 0 {
		return "", &RenderError{Path: path, Err: fmt.Errorf("empty image")}
	}
	return base64.StdEncoding.EncodeToString(out.Stdout), nil
}

func (w *WaveformRenderer) args(path string, r *timeline.Range) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if r != nil {
		args = append(args, "-ss", sec(r.Start), "-t", sec(r.Duration))
	}
	args = append(args,
		"-i", path,
		"-filter_complex", fmt.Sprintf("aformat=channel_layouts=mono,showwavespic=s=%dx%d:colors=%s", w.width, w.height, waveformColor),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	return args
}
