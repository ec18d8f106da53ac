package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prober reads metadata from a media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (*Metadata, error)
}

// FFprobe is the production Prober.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewFFprobe(binary string, timeout time.Duration, logger *slog.Logger) *FFprobe {
	return &FFprobe{binary: binary, timeout: timeout, logger: logger}
}

// Inspect runs ffprobe and parses its JSON output. Any failure, including a
// file without a usable duration, is reported as a *ProbeError.
func (p *FFprobe) Inspect(ctx context.Context, path string) (*Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out := run(ctx, p.logger, p.binary, true, nil,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if out.Err != nil {
		return nil, &ProbeError{Path: path, Err: out.Err}
	}
	if out.ExitCode != 0 {
		return nil, &ProbeError{Path: path, Err: fmt.Errorf("ffprobe exited %d: %s", out.ExitCode, lastLine(out.StderrTail))}
	}

	meta, err := ParseProbeOutput(out.Stdout)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	return meta, nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// ParseProbeOutput converts ffprobe's JSON into Metadata. The container
// duration is preferred; the longest stream duration is the fallback.
func ParseProbeOutput(data []byte) (*Metadata, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	meta := &Metadata{}
	meta.DurationSeconds, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	meta.SizeBytes, _ = strconv.ParseInt(raw.Format.Size, 10, 64)

	for _, s := range raw.Streams {
		meta.Streams = append(meta.Streams, Stream{
			Index:     s.Index,
			Type:      s.CodecType,
			Codec:     s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			FrameRate: parseRate(s.RFrameRate),
			Channels:  s.Channels,
		})
		if meta.DurationSeconds <= 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > meta.DurationSeconds {
				meta.DurationSeconds = d
			}
		}
	}

	if meta.DurationSeconds <= 0 {
		return nil, fmt.Errorf("no duration reported")
	}
	if len(meta.Streams) == 0 {
		return nil, fmt.Errorf("no streams found")
	}
	return meta, nil
}

// parseRate parses "30000/1001" or "25" into frames per second.
func parseRate(s string) float64 {
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
