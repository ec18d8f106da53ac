// Package session owns the currently active media artifact and the chain of
// temporary artifacts produced by edits on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kioskmedia/timeline-agent/internal/logging"
	"github.com/kioskmedia/timeline-agent/internal/media"
)

var ErrClosed = errors.New("session closed")

// Tracker records artifact lifecycle so leftovers can be collected after a
// crash. Implementations must be safe for concurrent use.
type Tracker interface {
	SessionOpened(ctx context.Context, id, sourcePath, workDir string) error
	SessionClosed(ctx context.Context, id string) error
	ArtifactCreated(ctx context.Context, sessionID, path, op string) error
	ArtifactDeleted(ctx context.Context, path string) error
}

// Manager opens sessions against a prober and a work directory root.
type Manager struct {
	prober   media.Prober
	workRoot string
	tracker  Tracker
	logger   *slog.Logger
}

// NewManager creates a Manager. tracker may be nil.
func NewManager(prober media.Prober, workRoot string, tracker Tracker, logger *slog.Logger) *Manager {
	return &Manager{prober: prober, workRoot: workRoot, tracker: tracker, logger: logger}
}

// Session is one imported media file and everything derived from it.
type Session struct {
	ID         string
	SourcePath string
	WorkDir    string
	OpenedAt   time.Time

	prober  media.Prober
	tracker Tracker
	logger  *slog.Logger

	mu            sync.RWMutex
	activePath    string
	metadata      *media.Metadata
	artifactChain []string
	owned         map[string]bool
	closed        bool
}

// Open probes path and returns a session for it. A probe failure is returned
// as *media.ProbeError and nothing is created.
func (m *Manager) Open(ctx context.Context, path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	meta, err := m.prober.Inspect(ctx, abs)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	workDir := filepath.Join(m.workRoot, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	s := &Session{
		ID:         id,
		SourcePath: abs,
		WorkDir:    workDir,
		OpenedAt:   time.Now(),
		prober:     m.prober,
		tracker:    m.tracker,
		logger:     logging.WithSessionID(m.logger, id),
		activePath: abs,
		metadata:   meta,
		owned:      make(map[string]bool),
	}
	if s.tracker != nil {
		if err := s.tracker.SessionOpened(ctx, id, abs, workDir); err != nil {
			s.logger.Warn("failed to record session", "error", err)
		}
	}

	s.logger.Info("session opened",
		"path", logging.SanitizePath(abs),
		"duration_s", meta.DurationSeconds,
		"streams", len(meta.Streams),
	)
	return s, nil
}

// ActivePath returns the artifact currently shown to the user.
func (s *Session) ActivePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePath
}

// Metadata returns the probed metadata of the active artifact.
func (s *Session) Metadata() *media.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// ArtifactChain returns the previously active paths, oldest first.
func (s *Session) ArtifactChain() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.artifactChain...)
}

// Owns reports whether path is a temporary artifact created by this session.
func (s *Session) Owns(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owned[path]
}

// NewArtifactPath allocates a unique path in the work directory. The path is
// owned by the session from this point, whether or not anything is written
// to it.
func (s *Session) NewArtifactPath(ctx context.Context, op, ext string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if ext == "" {
		ext = filepath.Ext(s.activePath)
	}
	if ext == "" {
		ext = ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.WorkDir, fmt.Sprintf("%s-%s%s", op, uuid.NewString(), ext))
	s.owned[path] = true
	s.mu.Unlock()

	if s.tracker != nil {
		if err := s.tracker.ArtifactCreated(ctx, s.ID, path, op); err != nil {
			s.logger.Warn("failed to record artifact", "op", op, "error", err)
		}
	}
	return path, nil
}

// Adopt makes newPath the active artifact once it has been probed
// successfully. The previous path is appended to the chain and deleted if
// the session owns it. On probe failure the session is unchanged and the
// unreachable output is removed.
func (s *Session) Adopt(ctx context.Context, newPath string) ([]string, error) {
	if s.isClosed() {
		s.removeLate(ctx, newPath)
		return nil, ErrClosed
	}

	meta, err := s.prober.Inspect(ctx, newPath)
	if err != nil {
		if derr := s.Discard(ctx, newPath); derr != nil {
			s.logger.Warn("failed to remove unreadable artifact", "error", derr)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.removeLate(ctx, newPath)
		return nil, ErrClosed
	}
	prev := s.activePath
	s.activePath = newPath
	s.metadata = meta
	s.artifactChain = append(s.artifactChain, prev)
	ownsPrev := s.owned[prev]
	s.mu.Unlock()

	s.logger.Info("artifact adopted",
		"artifact", filepath.Base(newPath),
		"duration_s", meta.DurationSeconds,
		"chain_length", len(s.ArtifactChain()),
	)

	if !ownsPrev {
		return nil, nil
	}
	if err := s.Discard(ctx, prev); err != nil {
		s.logger.Warn("failed to delete retired artifact", "artifact", filepath.Base(prev), "error", err)
		return nil, nil
	}
	return []string{prev}, nil
}

// Discard deletes an owned artifact. Paths the session does not own are
// never touched.
func (s *Session) Discard(ctx context.Context, path string) error {
	s.mu.Lock()
	if !s.owned[path] || path == s.activePath {
		s.mu.Unlock()
		return nil
	}
	delete(s.owned, path)
	s.mu.Unlock()

	return s.remove(ctx, path)
}

func (s *Session) remove(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	if s.tracker != nil {
		if err := s.tracker.ArtifactDeleted(ctx, path); err != nil {
			s.logger.Warn("failed to record artifact deletion", "error", err)
		}
	}
	return nil
}

// Export copies the active artifact to dst.
func (s *Session) Export(dst string) error {
	src := s.ActivePath()
	if src == "" {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open active artifact: %w", err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close destination: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalise destination: %w", err)
	}

	s.logger.Info("artifact exported", "dest", logging.SanitizePath(dst))
	return nil
}

// Close deletes every artifact the session still owns and its work dir.
// The source file is never deleted.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	paths := make([]string, 0, len(s.owned))
	for p := range s.owned {
		paths = append(paths, p)
	}
	s.owned = map[string]bool{}
	s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := s.remove(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.WorkDir); err != nil {
		errs = append(errs, fmt.Errorf("remove work dir: %w", err))
	}
	if s.tracker != nil {
		if err := s.tracker.SessionClosed(ctx, s.ID); err != nil {
			s.logger.Warn("failed to record session close", "error", err)
		}
	}

	s.logger.Info("session closed", "artifacts_removed", len(paths))
	return errors.Join(errs...)
}

// removeLate deletes an artifact that finished after Close already swept the
// work dir, along with the work dir the writer recreated for it.
func (s *Session) removeLate(ctx context.Context, path string) {
	if filepath.Dir(path) != s.WorkDir {
		return
	}
	if err := s.remove(ctx, path); err != nil {
		s.logger.Warn("failed to remove late artifact", "artifact", filepath.Base(path), "error", err)
	}
	if err := os.RemoveAll(s.WorkDir); err != nil {
		s.logger.Warn("failed to remove work dir", "error", err)
	}
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Info is a read-only view for status reporting.
type Info struct {
	ID            string          `json:"id"`
	SourcePath    string          `json:"source_path"`
	ActivePath    string          `json:"active_path"`
	Metadata      *media.Metadata `json:"metadata"`
	ChainLength   int             `json:"chain_length"`
	OwnedCount    int             `json:"owned_artifacts"`
	OpenedAt      time.Time       `json:"opened_at"`
	ActiveIsOwned bool            `json:"active_is_temporary"`
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:            s.ID,
		SourcePath:    s.SourcePath,
		ActivePath:    s.activePath,
		Metadata:      s.metadata,
		ChainLength:   len(s.artifactChain),
		OwnedCount:    len(s.owned),
		OpenedAt:      s.OpenedAt,
		ActiveIsOwned: s.owned[s.activePath],
	}
}
