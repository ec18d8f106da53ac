package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

var executablePath = os.Executable

// ResolveBinary finds an executable, preferring an explicit path. When no
// preference is given it looks next to the running executable (bundled
// builds) and then on PATH.
func ResolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if self, err := executablePath(); err == nil {
		bundled := filepath.Join(filepath.Dir(self), "ffmpeg", name)
		if p, err := exec.LookPath(bundled); err == nil {
			return p, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", name)
}

// runOutcome is the raw result of one subprocess invocation.
type runOutcome struct {
	ExitCode   int
	Stdout     []byte
	StderrTail string
	Duration   time.Duration
	Err        error
}

// run executes a binary with a bounded stderr buffer. When tap is non-nil it
// also sees the full stderr stream.
func run(ctx context.Context, logger *slog.Logger, binary string, captureStdout bool, tap io.Writer, args ...string) runOutcome {
	start := time.Now()
	cmd := exec.CommandContext(ctx, binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if tap != nil {
		cmd.Stderr = io.MultiWriter(cmd.Stderr, tap)
	}
	var stdoutBuf bytes.Buffer
	if captureStdout {
		cmd.Stdout = &stdoutBuf
	} else {
		cmd.Stdout = io.Discard
	}

	if logger != nil {
		logger.Debug("executing media command", "binary", filepath.Base(binary), "args", args)
	}

	err := cmd.Run()
	out := runOutcome{
		Stdout:     stdoutBuf.Bytes(),
		StderrTail: stderrBuf.String(),
		Duration:   time.Since(start),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
			out.Err = err
		}
		if ctx.Err() != nil {
			out.Err = ctx.Err()
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
