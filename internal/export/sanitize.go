package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// ErrInvalidOutputDir is wrapped by every ValidateOutputDir failure.
var ErrInvalidOutputDir = errors.New("invalid output_dir")

// SanitizeName makes s safe for an EDL title or a file name: control
// characters are dropped, other runes outside letters, digits and
// " -_.,()" become underscores, and the result is cut to maxLen runes.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		}
		return '_'
	}, s)
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

// ValidateOutputDir accepts an existing directory given as an absolute,
// clean path without parent references.
func ValidateOutputDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return invalidDir("required")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return invalidDir("path traversal")
	case filepath.Clean(dir) != dir:
		return invalidDir("must be a clean path")
	case !filepath.IsAbs(dir):
		return invalidDir("must be absolute")
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return invalidDir("does not exist")
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return invalidDir("not a directory")
	}
	return nil
}

func invalidDir(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOutputDir, reason)
}

// WriteEDL writes body to <dir>/<project>.edl and returns the path.
func WriteEDL(dir, project, body string) (string, error) {
	path := filepath.Join(dir, project+".edl")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	return path, nil
}
