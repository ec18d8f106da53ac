package media

import (
	"errors"
	"fmt"
)

// CodecExecutionError is returned when the external engine exits with a
// failure. It is fatal to the one operation only.
type CodecExecutionError struct {
	Op         Opcode
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *CodecExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (exit %d): %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Op, e.ExitCode, lastLine(e.StderrTail))
}

func (e *CodecExecutionError) Unwrap() error { return e.Err }

// UserMessage is the actionable text shown next to the failed operation.
func (e *CodecExecutionError) UserMessage() string {
	return fmt.Sprintf("The %s operation failed in the media engine. The current clip is unchanged; you can retry.", e.Op)
}

// ProbeError is returned when metadata for a file cannot be read. Loading
// the artifact is aborted.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// RenderError is returned when a waveform image cannot be produced. It is
// never surfaced to the user.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render waveform %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// IsCodecError reports whether err is or wraps a CodecExecutionError.
func IsCodecError(err error) bool {
	var ce *CodecExecutionError
	return errors.As(err, &ce)
}

// IsProbeError reports whether err is or wraps a ProbeError.
func IsProbeError(err error) bool {
	var pe *ProbeError
	return errors.As(err, &pe)
}

func lastLine(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	for i := end - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1 : end]
		}
	}
	return s[:end]
}
