package api

import (
	"time"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/selection"
	"github.com/kioskmedia/timeline-agent/internal/session"
	"github.com/kioskmedia/timeline-agent/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State     string                `json:"state"`
	Busy      edit.Kind             `json:"busy,omitempty"`
	Progress  *media.Progress       `json:"progress,omitempty"`
	LastError string                `json:"last_error,omitempty"`
	Session   *session.Info         `json:"session,omitempty"`
	Engine    *EngineStatusResponse `json:"engine,omitempty"`
	Janitor   JanitorStatusResponse `json:"janitor"`
}

type EngineStatusResponse struct {
	Ready          bool   `json:"ready"`
	FFmpegVersion  string `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type JanitorStatusResponse struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

type ImportRequest struct {
	Path string `json:"path"`
}

type ToolRequest struct {
	Tool selection.Tool `json:"tool"`
}

type PointerRequest struct {
	X float64 `json:"x"`
	// WidthPx is only read on pointer down.
	WidthPx float64 `json:"width_px"`
}

type SeekRequest struct {
	Time float64 `json:"time"`
}

type SeekResponse struct {
	Playhead float64 `json:"playhead"`
}

type ZoomRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type ZoomResponse struct {
	Zoom timeline.Zoom `json:"zoom"`
}

type SelectionRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type SelectionResponse struct {
	Tool      selection.Tool            `json:"tool"`
	Selection *selection.SelectionRange `json:"selection"`
}

type OperationResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Kind       string `json:"kind"`
	Params     string `json:"params"`
	Status     string `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type OperationsResponse struct {
	Operations []OperationResponse `json:"operations"`
}

type ExportClipRequest struct {
	Destination string `json:"destination"`
}

type ExtractAudioRequest struct {
	Destination string `json:"destination"`
	Codec       string `json:"codec,omitempty"`
}

type ExportClipResponse struct {
	Status      string `json:"status"`
	Destination string `json:"destination"`
}

type DoctorResponse struct {
	Ready        bool                `json:"ready"`
	Capabilities *media.Capabilities `json:"capabilities,omitempty"`
}

type GCResponse struct {
	Removed    int    `json:"removed"`
	Missing    int    `json:"missing"`
	Failed     int    `json:"failed"`
	FreedBytes int64  `json:"freed_bytes"`
	Freed      string `json:"freed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func OperationToResponse(op *ledger.Operation) OperationResponse {
	return OperationResponse{
		ID:         op.ID,
		SessionID:  op.SessionID,
		Kind:       op.Kind,
		Params:     op.Params,
		Status:     op.Status,
		OutputPath: op.OutputPath,
		Error:      op.Error,
		CreatedAt:  op.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  op.UpdatedAt.Format(time.RFC3339),
	}
}
