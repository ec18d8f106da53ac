package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kioskmedia/timeline-agent/internal/edit"
	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/media"
	"github.com/kioskmedia/timeline-agent/internal/session"
)

// writeEditError maps engine and editor errors to HTTP responses.
func writeEditError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		ve *edit.ValidationError
		ce *media.CodecExecutionError
		pe *media.ProbeError
	)
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, ve.Error(), "VALIDATION_ERROR")
	case errors.As(err, &ce):
		logger.Warn("engine failed", "op", ce.Op, "exit_code", ce.ExitCode, "error", err)
		WriteError(w, http.StatusBadGateway, ce.UserMessage(), "CODEC_ERROR")
	case errors.As(err, &pe):
		WriteError(w, http.StatusUnprocessableEntity, edit.UserMessage(err), "PROBE_ERROR")
	case errors.Is(err, editor.ErrNoSession), errors.Is(err, session.ErrClosed):
		WriteError(w, http.StatusConflict, editor.ErrNoSession.Error(), "NO_SESSION")
	case errors.Is(err, editor.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "BUSY")
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "operation timed out", "TIMEOUT")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}
