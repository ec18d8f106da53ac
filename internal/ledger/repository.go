package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioskmedia/timeline-agent/internal/db"
)

type Repository interface {
	SessionOpened(ctx context.Context, id, sourcePath, workDir string) error
	SessionClosed(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	ArtifactCreated(ctx context.Context, sessionID, path, op string) error
	ArtifactDeleted(ctx context.Context, path string) error
	ListOrphanedArtifacts(ctx context.Context, olderThan time.Time) ([]*Artifact, error)

	Begin(ctx context.Context, sessionID, kind, params string) (string, error)
	Finish(ctx context.Context, opID, outputPath string, opErr error) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperations(ctx context.Context, sessionID string, limit int) ([]*Operation, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: conn, now: time.Now}
}

func (r *SQLiteRepository) SessionOpened(ctx context.Context, id, sourcePath, workDir string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, source_path, work_dir, opened_at) VALUES (?, ?, ?, ?)
	`, id, sourcePath, workDir, db.Timestamp(r.now()))
	return err
}

func (r *SQLiteRepository) SessionClosed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET closed_at = ? WHERE id = ? AND closed_at IS NULL
	`, db.Timestamp(r.now()), id)
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var s SessionRecord
	var openedAt string
	var closedAt sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_path, work_dir, opened_at, closed_at FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.SourcePath, &s.WorkDir, &openedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.OpenedAt = db.ParseTimestamp(openedAt)
	s.ClosedAt = optionalTime(closedAt)
	return &s, nil
}

func (r *SQLiteRepository) ArtifactCreated(ctx context.Context, sessionID, path, op string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (path, session_id, op, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET session_id = excluded.session_id, op = excluded.op,
			created_at = excluded.created_at, deleted_at = NULL
	`, path, sessionID, op, db.Timestamp(r.now()))
	return err
}

func (r *SQLiteRepository) ArtifactDeleted(ctx context.Context, path string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE artifacts SET deleted_at = ? WHERE path = ? AND deleted_at IS NULL
	`, db.Timestamp(r.now()), path)
	return err
}

// ListOrphanedArtifacts returns live artifacts of closed sessions created
// before olderThan, oldest first.
func (r *SQLiteRepository) ListOrphanedArtifacts(ctx context.Context, olderThan time.Time) ([]*Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.path, a.session_id, a.op, a.created_at
		FROM artifacts a JOIN sessions s ON s.id = a.session_id
		WHERE a.deleted_at IS NULL AND s.closed_at IS NOT NULL AND a.created_at < ?
		ORDER BY a.created_at
	`, db.Timestamp(olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		var createdAt string
		if err := rows.Scan(&a.Path, &a.SessionID, &a.Op, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = db.ParseTimestamp(createdAt)
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

func (r *SQLiteRepository) Begin(ctx context.Context, sessionID, kind, params string) (string, error) {
	id := uuid.NewString()
	now := db.Timestamp(r.now())
	if params == "" {
		params = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO operations (id, session_id, kind, params, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, sessionID, kind, params, OperationRunning, now, now)
	if err != nil {
		return "", fmt.Errorf("record operation: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Finish(ctx context.Context, opID, outputPath string, opErr error) error {
	status, errMsg := OperationSucceeded, ""
	if opErr != nil {
		status, errMsg = OperationFailed, truncateStr(opErr.Error(), 1024)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, output_path = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(outputPath), nullString(errMsg), db.Timestamp(r.now()), opID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operation %s: %w", opID, ErrNotFound)
	}
	return nil
}

var ErrNotFound = errors.New("not found")

const operationColumns = `id, session_id, kind, params, status, output_path, error, created_at, updated_at`

func (r *SQLiteRepository) GetOperation(ctx context.Context, id string) (*Operation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

// ListOperations returns the most recent operations first. An empty
// sessionID lists across sessions.
func (r *SQLiteRepository) ListOperations(ctx context.Context, sessionID string, limit int) ([]*Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if sessionID == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+operationColumns+` FROM operations ORDER BY created_at DESC, rowid DESC LIMIT ?
		`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+operationColumns+` FROM operations WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		`, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(s scanner) (*Operation, error) {
	var op Operation
	var output, errMsg sql.NullString
	var createdAt, updatedAt string
	if err := s.Scan(&op.ID, &op.SessionID, &op.Kind, &op.Params, &op.Status, &output, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	op.OutputPath = output.String
	op.Error = errMsg.String
	op.CreatedAt = db.ParseTimestamp(createdAt)
	op.UpdatedAt = db.ParseTimestamp(updatedAt)
	return &op, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func optionalTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := db.ParseTimestamp(s.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
