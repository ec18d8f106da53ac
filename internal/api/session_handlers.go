package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kioskmedia/timeline-agent/internal/selection"
)

func snapshotHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Editor.Snapshot())
	}
}

func importHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		info, err := cfg.Editor.Import(r.Context(), req.Path)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, info)
	}
}

func closeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Editor.Close(r.Context()); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toolHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ToolRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := cfg.Editor.SelectTool(req.Tool); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Editor.Snapshot())
	}
}

func pointerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PointerRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var out selection.Outcome
		switch chi.URLParam(r, "phase") {
		case "down":
			if req.WidthPx <= 0 {
				WriteError(w, http.StatusBadRequest, "width_px must be positive", "VALIDATION_ERROR")
				return
			}
			var err error
			out, err = cfg.Editor.PointerDown(req.X, req.WidthPx)
			if err != nil {
				writeEditError(w, cfg.Logger, err)
				return
			}
		case "move":
			out = cfg.Editor.PointerMove(req.X)
		case "up":
			out = cfg.Editor.PointerUp(req.X)
		default:
			WriteError(w, http.StatusNotFound, "unknown pointer phase", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

func doubleClickHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Editor.DoubleClick()
		WriteJSON(w, http.StatusOK, cfg.Editor.Snapshot())
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := cfg.Editor.Seek(req.Time)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SeekResponse{Playhead: t})
	}
}

func zoomHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ZoomRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		z, err := cfg.Editor.SetZoom(req.Start, req.End)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ZoomResponse{Zoom: z})
	}
}

func resetZoomHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Editor.ResetZoom()
		WriteJSON(w, http.StatusOK, cfg.Editor.Snapshot())
	}
}

func waveformHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Editor.Waveform())
	}
}
