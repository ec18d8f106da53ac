// Package export writes edit decision lists describing a session's clips so
// the cut can be rebuilt in a desktop NLE.
package export

// Source selects what an export describes.
type Source string

const (
	// SourceSelection exports the tool's current selection on the active
	// clip.
	SourceSelection Source = "selection"
	// SourceMerge exports the clip list of a recorded merge operation.
	SourceMerge Source = "merge"
)

type Request struct {
	ProjectName string  `json:"project_name"`
	Format      string  `json:"format"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir"`
	Source      Source  `json:"source"`
	// Tool names the selection to export when Source is selection.
	Tool string `json:"tool,omitempty"`
	// OperationID names the merge to export. Empty means the session's most
	// recent successful merge.
	OperationID string `json:"operation_id,omitempty"`
}

// Clip is one event in the list. Times are seconds into MediaPath.
type Clip struct {
	Name      string
	MediaPath string
	Start     float64
	End       float64
}

// Dissolve describes the transition between consecutive events. A zero
// value is a cut.
type Dissolve struct {
	Seconds float64
}

type Response struct {
	Status          string   `json:"status"`
	Format          string   `json:"format"`
	OutputPath      string   `json:"output_path"`
	ClipCount       int      `json:"clip_count"`
	UnresolvedClips []string `json:"unresolved_clips"`
}
