// Package ledger persists sessions, operations and temporary artifacts so
// that anything left on disk after a failure can be collected later.
package ledger

import "time"

const (
	OperationRunning   = "running"
	OperationSucceeded = "succeeded"
	OperationFailed    = "failed"
)

type SessionRecord struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"source_path"`
	WorkDir    string     `json:"work_dir"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

type Operation struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Params     string    `json:"params"`
	Status     string    `json:"status"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Artifact struct {
	Path      string     `json:"path"`
	SessionID string     `json:"session_id"`
	Op        string     `json:"op"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
