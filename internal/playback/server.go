// Package playback streams the session's active artifact to the player
// with byte-range support.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	HeaderPreviewStart     = "X-Preview-Start"
	HeaderPreviewEnd       = "X-Preview-End"
	HeaderSuppressAutoSkip = "X-Preview-Suppress-Auto-Skip"
)

// mediaTypes covers the containers the engine produces that the platform
// mime table may lack.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".png":  "image/png",
}

// Window is a span of the file the player should play. Seconds.
type Window struct {
	Start            float64
	End              float64
	SuppressAutoSkip bool
}

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string, window *Window) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes filePath honouring a single Range request. When window
// is set its bounds are announced in preview headers.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string, window *Window) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", ContentType(filePath))
	if window != nil {
		WritePreviewHeaders(h, *window)
	}

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err == ErrInvalidRange:
		// A malformed header is ignored and the whole file is sent.
		parsed = nil
	case err != nil:
		return err
	}

	if parsed == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		n, err := io.Copy(w, file)
		s.logServed(filePath, n, err)
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(parsed.ContentLength(), 10))
	h.Set("Content-Range", parsed.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(parsed.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	n, err := io.CopyN(w, file, parsed.ContentLength())
	s.logServed(filePath, n, err)
	return nil
}

// logServed records the transfer. Copy errors are client disconnects.
func (s *Server) logServed(path string, n int64, err error) {
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Debug("playback interrupted", "file", filepath.Base(path), "sent", humanize.Bytes(uint64(n)), "error", err)
		return
	}
	s.logger.Debug("playback served", "file", filepath.Base(path), "sent", humanize.Bytes(uint64(n)))
}

// ContentType guesses the media type from the extension.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// WritePreviewHeaders announces a preview window to the player.
func WritePreviewHeaders(h http.Header, win Window) {
	h.Set(HeaderPreviewStart, strconv.FormatFloat(win.Start, 'f', 3, 64))
	h.Set(HeaderPreviewEnd, strconv.FormatFloat(win.End, 'f', 3, 64))
	if win.SuppressAutoSkip {
		h.Set(HeaderSuppressAutoSkip, "1")
	}
}
