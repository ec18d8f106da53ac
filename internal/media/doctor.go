package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo reports whether one engine binary is usable.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the outcome of a doctor probe.
type Capabilities struct {
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	FFprobe  ToolInfo  `json:"ffprobe"`
	ProbedAt time.Time `json:"probed_at"`
}

// Ready reports whether both binaries responded.
func (c *Capabilities) Ready() bool {
	return c != nil && c.FFmpeg.Available && c.FFprobe.Available
}

// VersionFunc runs `<binary> -version` and returns the first output line.
type VersionFunc func(ctx context.Context, binary string) (string, error)

// BinaryVersion is the production VersionFunc.
func BinaryVersion(ctx context.Context, binary string) (string, error) {
	out := run(ctx, nil, binary, true, nil, "-hide_banner", "-version")
	if out.Err != nil {
		return "", out.Err
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("exited %d: %s", out.ExitCode, lastLine(out.StderrTail))
	}
	first, _, _ := strings.Cut(string(out.Stdout), "\n")
	return strings.TrimSpace(first), nil
}

// Doctor caches capability probes with a TTL so the API can report engine
// health without spawning processes on every request.
type Doctor struct {
	ffmpeg  string
	ffprobe string
	version VersionFunc
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewDoctor(ffmpeg, ffprobe string, version VersionFunc, logger *slog.Logger) *Doctor {
	if version == nil {
		version = BinaryVersion
	}
	return &Doctor{
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		version: version,
		ttl:     defaultCacheTTL,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *Doctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *Doctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe. If ffmpeg cannot be run at all and a previous
// result exists, the stale result is returned.
func (d *Doctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	caps := &Capabilities{
		FFmpeg:   d.probeTool(ctx, d.ffmpeg),
		FFprobe:  d.probeTool(ctx, d.ffprobe),
		ProbedAt: time.Now(),
	}

	if !caps.FFmpeg.Available {
		d.logger.Warn("doctor probe failed", "error", caps.FFmpeg.Error)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return caps, fmt.Errorf("ffmpeg unavailable: %s", caps.FFmpeg.Error)
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *Doctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *Doctor) probeTool(ctx context.Context, binary string) ToolInfo {
	if binary == "" {
		return ToolInfo{Error: "not configured"}
	}
	v, err := d.version(ctx, binary)
	if err != nil {
		return ToolInfo{Path: binary, Error: err.Error()}
	}
	return ToolInfo{Available: true, Path: binary, Version: v}
}
