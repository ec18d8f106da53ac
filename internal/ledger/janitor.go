package ledger

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultGracePeriod   = time.Hour
)

// Report summarises one sweep.
type Report struct {
	Removed    int   `json:"removed"`
	Missing    int   `json:"missing"`
	Failed     int   `json:"failed"`
	FreedBytes int64 `json:"freed_bytes"`
}

// Janitor periodically deletes orphaned artifacts recorded in the ledger.
type Janitor struct {
	repo     Repository
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
	now      func() time.Time

	sweepMu sync.Mutex
	running atomic.Bool
	paused  atomic.Bool
}

func NewJanitor(repo Repository, interval, grace time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if grace < 0 {
		grace = DefaultGracePeriod
	}
	return &Janitor{
		repo:     repo,
		logger:   logger,
		interval: interval,
		grace:    grace,
		now:      time.Now,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	if j.running.Swap(true) {
		return
	}

	j.logger.Info("artifact janitor started", "interval", j.interval, "grace", j.grace)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("artifact janitor stopping")
			j.running.Store(false)
			return
		case <-ticker.C:
			if !j.paused.Load() {
				if _, err := j.Sweep(ctx); err != nil {
					j.logger.Error("artifact sweep failed", "error", err)
				}
			}
		}
	}
}

func (j *Janitor) Pause() {
	j.paused.Store(true)
	j.logger.Info("artifact janitor paused")
}

func (j *Janitor) Resume() {
	j.paused.Store(false)
	j.logger.Info("artifact janitor resumed")
}

func (j *Janitor) IsPaused() bool {
	return j.paused.Load()
}

func (j *Janitor) IsRunning() bool {
	return j.running.Load()
}

// Sweep removes orphans older than the grace period. Files already gone are
// marked deleted; files that cannot be removed are retried next sweep.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	var rep Report
	orphans, err := j.repo.ListOrphanedArtifacts(ctx, j.now().Add(-j.grace))
	if err != nil {
		return rep, err
	}
	if len(orphans) == 0 {
		return rep, nil
	}

	dirs := map[string]bool{}
	for _, a := range orphans {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		size, err := removeFile(a.Path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			rep.Missing++
		case err != nil:
			rep.Failed++
			j.logger.Warn("failed to remove orphaned artifact", "artifact", filepath.Base(a.Path), "error", err)
			continue
		default:
			rep.Removed++
			rep.FreedBytes += size
		}
		if err := j.repo.ArtifactDeleted(ctx, a.Path); err != nil {
			j.logger.Warn("failed to record artifact deletion", "artifact", filepath.Base(a.Path), "error", err)
		}
		dirs[filepath.Dir(a.Path)] = true
	}

	// Work dirs go once they are empty.
	for dir := range dirs {
		os.Remove(dir)
	}

	j.logger.Info("artifact sweep finished",
		"removed", rep.Removed,
		"missing", rep.Missing,
		"failed", rep.Failed,
		"freed", humanize.Bytes(uint64(rep.FreedBytes)),
	)
	return rep, nil
}

func removeFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
