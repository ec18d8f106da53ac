package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kioskmedia/timeline-agent/internal/db"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.New(filepath.Join(tmpDir, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionLifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.SessionOpened(ctx, "s1", "/media/in.mp4", "/work/s1"); err != nil {
		t.Fatalf("SessionOpened error: %v", err)
	}
	s, err := repo.GetSession(ctx, "s1")
	if err != nil || s == nil {
		t.Fatalf("GetSession = %v, %v", s, err)
	}
	if s.SourcePath != "/media/in.mp4" || s.ClosedAt != nil || s.OpenedAt.IsZero() {
		t.Errorf("session = %+v", s)
	}

	if err := repo.SessionClosed(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	s, _ = repo.GetSession(ctx, "s1")
	if s.ClosedAt == nil {
		t.Error("closed_at not set")
	}

	if s, err := repo.GetSession(ctx, "missing"); s != nil || err != nil {
		t.Errorf("missing session = %v, %v", s, err)
	}
}

func TestOperationHistory(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	repo.SessionOpened(ctx, "s1", "/in.mp4", "/work/s1")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	okID, err := repo.Begin(ctx, "s1", "trim", `{"start":1,"duration":2}`)
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	repo.now = func() time.Time { return base.Add(time.Second) }
	if err := repo.Finish(ctx, okID, "/work/s1/trim.mp4", nil); err != nil {
		t.Fatalf("Finish error: %v", err)
	}

	repo.now = func() time.Time { return base.Add(2 * time.Second) }
	failID, _ := repo.Begin(ctx, "s1", "speed", "")
	if err := repo.Finish(ctx, failID, "", errors.New("speed failed (exit 1)")); err != nil {
		t.Fatal(err)
	}

	ops, err := repo.ListOperations(ctx, "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].ID != failID || ops[0].Status != OperationFailed || ops[0].Error == "" || ops[0].Params != "{}" {
		t.Errorf("latest op = %+v", ops[0])
	}
	if ops[1].Status != OperationSucceeded || ops[1].OutputPath != "/work/s1/trim.mp4" || ops[1].Error != "" {
		t.Errorf("first op = %+v", ops[1])
	}

	got, err := repo.GetOperation(ctx, okID)
	if err != nil || got == nil || got.Kind != "trim" || !got.UpdatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("GetOperation = %+v, %v", got, err)
	}

	if err := repo.Finish(ctx, "nope", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Finish unknown = %v, want ErrNotFound", err)
	}
}

func TestListOrphanedArtifacts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	repo.SessionOpened(ctx, "closed", "/a.mp4", "/work/closed")
	repo.SessionOpened(ctx, "open", "/b.mp4", "/work/open")
	repo.ArtifactCreated(ctx, "closed", "/work/closed/trim-1.mp4", "trim")
	repo.ArtifactCreated(ctx, "closed", "/work/closed/trim-2.mp4", "trim")
	repo.ArtifactCreated(ctx, "open", "/work/open/speed-1.mp4", "speed")
	repo.ArtifactDeleted(ctx, "/work/closed/trim-2.mp4")
	repo.SessionClosed(ctx, "closed")

	orphans, err := repo.ListOrphanedArtifacts(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 1 || orphans[0].Path != "/work/closed/trim-1.mp4" || orphans[0].Op != "trim" {
		t.Errorf("orphans = %+v", orphans)
	}

	// Nothing is old enough yet.
	orphans, _ = repo.ListOrphanedArtifacts(ctx, base)
	if len(orphans) != 0 {
		t.Errorf("orphans inside grace = %+v", orphans)
	}
}

func TestConfig(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "auth_token"); v != "" || err != nil {
		t.Errorf("GetConfig unset = %q, %v", v, err)
	}
	repo.SetConfig(ctx, "auth_token", "one")
	repo.SetConfig(ctx, "auth_token", "two")
	if v, _ := repo.GetConfig(ctx, "auth_token"); v != "two" {
		t.Errorf("GetConfig = %q, want two", v)
	}
}
