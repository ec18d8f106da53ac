package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/selection"
)

const maxParamsBytes = 64 << 10

func getSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}
		resp := SelectionResponse{Tool: tool}
		if sel, ok := cfg.Editor.GetSelection(tool); ok {
			resp.Selection = &sel
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func setSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}
		var req SelectionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sel, err := cfg.Editor.SetSelection(tool, req.Start, req.End)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SelectionResponse{Tool: tool, Selection: &sel})
	}
}

func clearSelectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}
		cfg.Editor.ClearSelection(tool)
		w.WriteHeader(http.StatusNoContent)
	}
}

func getOptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Editor.Options())
	}
}

func setOptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}

		var err error
		switch tool {
		case selection.ToolTrim:
			var o editor.TrimOptions
			if !decodeJSON(w, r, &o) {
				return
			}
			err = cfg.Editor.SetTrimOptions(o)
		case selection.ToolText:
			o := editor.DefaultTextOptions()
			if !decodeJSON(w, r, &o) {
				return
			}
			err = cfg.Editor.SetTextOptions(o)
		case selection.ToolAudio:
			o := editor.DefaultAudioOptions()
			if !decodeJSON(w, r, &o) {
				return
			}
			err = cfg.Editor.SetAudioOptions(o)
		default:
			WriteError(w, http.StatusBadRequest, string(tool)+" has no options", "VALIDATION_ERROR")
			return
		}
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Editor.Options())
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}
		var (
			plan editor.PreviewPlan
			err  error
		)
		if edge := r.URL.Query().Get("edge"); edge != "" {
			plan, err = cfg.Editor.PreviewEdge(tool, editor.Edge(edge))
		} else {
			plan, err = cfg.Editor.PreviewRange(tool)
		}
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, plan)
	}
}

func commitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, ok := toolParam(w, r)
		if !ok {
			return
		}
		ctx, cancel := opContext(cfg, r)
		defer cancel()

		res, err := cfg.Editor.Commit(ctx, tool)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// applyHandler runs an operation given directly by kind and JSON
// parameters, bypassing tool state.
func applyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxParamsBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		op, err := edit.Decode(edit.Kind(chi.URLParam(r, "kind")), json.RawMessage(raw))
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}

		ctx, cancel := opContext(cfg, r)
		defer cancel()

		res, err := cfg.Editor.Apply(ctx, op)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// listOperationsHandler returns history for ?session_id=, defaulting to the
// open session.
func listOperationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			sess, err := cfg.Editor.Session()
			if err != nil {
				writeEditError(w, cfg.Logger, err)
				return
			}
			sessionID = sess.ID
		}

		limit := defaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, 500)
		}

		ops, err := cfg.Repository.ListOperations(r.Context(), sessionID, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list operations", "INTERNAL_ERROR")
			return
		}

		resp := OperationsResponse{Operations: make([]OperationResponse, len(ops))}
		for i, op := range ops {
			resp.Operations[i] = OperationToResponse(op)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getOperationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		op, err := cfg.Repository.GetOperation(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if op == nil {
			WriteError(w, http.StatusNotFound, "operation not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, OperationToResponse(op))
	}
}
