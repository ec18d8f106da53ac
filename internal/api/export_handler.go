package api

import (
	"net/http"
	"strings"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/export"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/selection"
)

const defaultProjectName = "timeline_export"

func exportClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportClipRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Destination) == "" {
			WriteError(w, http.StatusBadRequest, "destination is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Editor.Export(req.Destination); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ExportClipResponse{Status: "ok", Destination: req.Destination})
	}
}

func extractAudioHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExtractAudioRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Destination) == "" {
			WriteError(w, http.StatusBadRequest, "destination is required", "BAD_REQUEST")
			return
		}
		ctx, cancel := opContext(cfg, r)
		defer cancel()

		if err := cfg.Editor.ExtractAudio(ctx, req.Destination, req.Codec); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ExportClipResponse{Status: "ok", Destination: req.Destination})
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.Request
		if !decodeJSON(w, r, &req) {
			return
		}

		if f := strings.ToLower(req.Format); f != "" && f != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		sess, err := cfg.Editor.Session()
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = sess.Metadata().FrameRate()
		}

		var (
			clips      []export.Clip
			unresolved []string
			dissolve   export.Dissolve
		)
		switch req.Source {
		case export.SourceSelection, "":
			tool := selection.Tool(req.Tool)
			if tool == "" {
				tool = selection.ToolTrim
			}
			sel, ok := cfg.Editor.GetSelection(tool)
			if !ok {
				WriteError(w, http.StatusBadRequest, "no "+string(tool)+" selection to export", "VALIDATION_ERROR")
				return
			}
			clip, err := export.SelectionClip(sess.ActivePath(), sel.Start, sel.End)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
				return
			}
			clips = []export.Clip{clip}

		case export.SourceMerge:
			op, err := findMerge(cfg, r, sess.ID, req.OperationID)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to read history", "INTERNAL_ERROR")
				return
			}
			if op == nil {
				WriteError(w, http.StatusNotFound, "no completed merge to export", "NOT_FOUND")
				return
			}
			clips, unresolved, dissolve, err = export.MergeClips(r.Context(), cfg.Prober, op.Params)
			if err != nil {
				WriteError(w, http.StatusUnprocessableEntity, err.Error(), "UNRESOLVABLE_CLIPS")
				return
			}

		default:
			WriteError(w, http.StatusBadRequest, "source must be selection or merge", "BAD_REQUEST")
			return
		}

		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
			return
		}

		project := export.ProjectName(req.ProjectName, defaultProjectName)
		body := export.GenerateEDL(clips, project, frameRate, dissolve)
		outputPath, err := export.WriteEDL(req.OutputDir, project, body)
		if err != nil {
			cfg.Logger.Error("edl export failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		if unresolved == nil {
			unresolved = []string{}
		}
		WriteJSON(w, http.StatusOK, export.Response{
			Status:          "ok",
			Format:          "edl",
			OutputPath:      outputPath,
			ClipCount:       len(clips),
			UnresolvedClips: unresolved,
		})
	}
}

// findMerge returns the named merge, or the session's latest successful
// one. A nil operation means there is nothing to export.
func findMerge(cfg ServerConfig, r *http.Request, sessionID, opID string) (*ledger.Operation, error) {
	if opID != "" {
		op, err := cfg.Repository.GetOperation(r.Context(), opID)
		if err != nil || op == nil {
			return nil, err
		}
		if op.Kind != string(edit.KindMerge) || op.Status != ledger.OperationSucceeded {
			return nil, nil
		}
		return op, nil
	}
	ops, err := cfg.Repository.ListOperations(r.Context(), sessionID, defaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.Kind == string(edit.KindMerge) && op.Status == ledger.OperationSucceeded {
			return op, nil
		}
	}
	return nil, nil
}
