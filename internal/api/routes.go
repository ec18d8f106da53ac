package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
	"github.com/kioskmedia/timeline-agent/internal/playback"
	"github.com/kioskmedia/timeline-agent/internal/selection"
)

const defaultHistoryLimit = 50

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// Media elements cannot send an Authorization header, so streaming is
	// limited to loopback clients instead.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())

		r.Get("/playback/active", playbackHandler(cfg))
		r.Head("/playback/active", playbackHandler(cfg))
		r.Get("/waveform/image", waveformImageHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/doctor", doctorHandler(cfg))
		r.Post("/maintenance/gc", gcHandler(cfg))

		r.Get("/session", snapshotHandler(cfg))
		r.Post("/session", importHandler(cfg))
		r.Delete("/session", closeHandler(cfg))

		r.Put("/tool", toolHandler(cfg))
		r.Post("/pointer/double-click", doubleClickHandler(cfg))
		r.Post("/pointer/{phase}", pointerHandler(cfg))
		r.Post("/seek", seekHandler(cfg))
		r.Put("/zoom", zoomHandler(cfg))
		r.Delete("/zoom", resetZoomHandler(cfg))
		r.Get("/waveform", waveformHandler(cfg))

		r.Get("/selections/{tool}", getSelectionHandler(cfg))
		r.Put("/selections/{tool}", setSelectionHandler(cfg))
		r.Delete("/selections/{tool}", clearSelectionHandler(cfg))
		r.Get("/options", getOptionsHandler(cfg))
		r.Put("/options/{tool}", setOptionsHandler(cfg))
		r.Get("/preview/{tool}", previewHandler(cfg))
		r.Post("/commit/{tool}", commitHandler(cfg))

		r.Post("/operations/{kind}", applyHandler(cfg))
		r.Get("/operations", listOperationsHandler(cfg))
		r.Get("/operations/{id}", getOperationHandler(cfg))

		r.Post("/export/clip", exportClipHandler(cfg))
		r.Post("/export/audio", extractAudioHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := StatusResponse{State: "empty"}

		if sess, err := cfg.Editor.Session(); err == nil {
			info := sess.Info()
			resp.Session = &info
			resp.State = "ready"

			ops, err := cfg.Repository.ListOperations(ctx, sess.ID, 10)
			if err != nil {
				cfg.Logger.Warn("failed to list operations", "error", err)
			}
			if len(ops) > 0 && ops[0].Status == ledger.OperationFailed {
				resp.LastError = ops[0].Error
			}
		}
		if busy := cfg.Editor.Busy(); busy != "" {
			resp.State = "busy"
			resp.Busy = busy
			resp.Progress = cfg.Editor.Progress()
		}

		if cfg.Janitor != nil {
			resp.Janitor = JanitorStatusResponse{Running: cfg.Janitor.IsRunning(), Paused: cfg.Janitor.IsPaused()}
		}

		// Peek never spawns a probe; /doctor does.
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Engine = &EngineStatusResponse{
					Ready:          caps.Ready(),
					FFmpegVersion:  caps.FFmpeg.Version,
					FFprobeVersion: caps.FFprobe.Version,
					LastProbeAt:    caps.ProbedAt.Format(time.RFC3339),
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func doctorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "doctor not configured", "ENGINE_UNAVAILABLE")
			return
		}
		get := cfg.Doctor.Get
		if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
			get = cfg.Doctor.Refresh
		}
		caps, err := get(r.Context())
		if caps == nil {
			cfg.Logger.Warn("engine probe failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "media engine unavailable", "ENGINE_UNAVAILABLE")
			return
		}
		WriteJSON(w, http.StatusOK, DoctorResponse{Ready: caps.Ready(), Capabilities: caps})
	}
}

func gcHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Janitor == nil {
			WriteError(w, http.StatusServiceUnavailable, "janitor not configured", "INTERNAL_ERROR")
			return
		}
		report, err := cfg.Janitor.Sweep(r.Context())
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, GCResponse{
			Removed:    report.Removed,
			Missing:    report.Missing,
			Failed:     report.Failed,
			FreedBytes: report.FreedBytes,
			Freed:      humanize.Bytes(uint64(report.FreedBytes)),
		})
	}
}

// playbackHandler streams the active artifact. With ?tool= the tool's
// preview window is announced in headers; ?edge= narrows it to one
// boundary.
func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := cfg.Editor.Session()
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}

		var window *playback.Window
		if tool := r.URL.Query().Get("tool"); tool != "" {
			var plan editor.PreviewPlan
			if edge := r.URL.Query().Get("edge"); edge != "" {
				plan, err = cfg.Editor.PreviewEdge(selection.Tool(tool), editor.Edge(edge))
			} else {
				plan, err = cfg.Editor.PreviewRange(selection.Tool(tool))
			}
			if err != nil {
				writeEditError(w, cfg.Logger, err)
				return
			}
			window = &playback.Window{Start: plan.Start, End: plan.End, SuppressAutoSkip: plan.SuppressAutoSkip}
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, sess.ActivePath(), window); err != nil {
			cfg.Logger.Error("playback error", "error", err, "session_id", sess.ID)
		}
	}
}

// waveformImageHandler serves the image currently on display as PNG.
func waveformImageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := cfg.Editor.Waveform()
		if state.Image == "" {
			WriteError(w, http.StatusNotFound, "no waveform image", "NOT_FOUND")
			return
		}
		img, err := base64.StdEncoding.DecodeString(state.Image)
		if err != nil {
			cfg.Logger.Error("waveform image undecodable", "error", err)
			WriteError(w, http.StatusInternalServerError, "waveform image unavailable", "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(img)))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(img)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

// opContext bounds a long-running edit.
func opContext(cfg ServerConfig, r *http.Request) (context.Context, context.CancelFunc) {
	if cfg.OpTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), cfg.OpTimeout)
}

func toolParam(w http.ResponseWriter, r *http.Request) (selection.Tool, bool) {
	tool := selection.Tool(chi.URLParam(r, "tool"))
	if !tool.Valid() {
		WriteError(w, http.StatusBadRequest, "unknown tool "+string(tool), "VALIDATION_ERROR")
		return "", false
	}
	return tool, true
}
