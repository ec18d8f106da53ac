package ui

import (
	"fmt"

	"github.com/kioskmedia/timeline-agent/internal/editor"
)

// StatusLine summarizes the editor for the tray menu.
func StatusLine(s editor.Snapshot) string {
	if s.Busy != "" {
		return fmt.Sprintf("Working: %s", s.Busy)
	}
	if s.Session == nil {
		return "No media loaded"
	}
	line := s.FileName
	if s.Session.Metadata != nil {
		line += " (" + FormatDuration(s.Session.Metadata.DurationSeconds)
		if s.Size != "" {
			line += ", " + s.Size
		}
		line += ")"
	}
	return line
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

func historyLine(chainLength int) string {
	switch chainLength {
	case 0:
		return "No edits"
	case 1:
		return "1 edit"
	default:
		return fmt.Sprintf("%d edits", chainLength)
	}
}
