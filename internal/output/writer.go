// Package output writes converted diagrams as markdown files.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer stores one <stem>.md file per image under Dir.
type Writer struct {
	Dir string
}

func NewWriter(dir string) (*Writer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("output: directory must not be empty")
	}
	return &Writer{Dir: dir}, nil
}

// Render wraps a fragment in a mermaid fence followed by a trailing newline.
func Render(fragment string) string {
	return "```mermaid\n" + fragment + "\n```\n"
}

// Path returns the file a stem is written to.
func (w *Writer) Path(stem string) string {
	return filepath.Join(w.Dir, stem+".md")
}

// Write creates Dir when needed and writes the fragment for stem.
func (w *Writer) Write(stem, fragment string) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("output: create dir %q: %w", w.Dir, err)
	}
	path := w.Path(stem)
	if err := os.WriteFile(path, []byte(Render(fragment)), 0o644); err != nil {
		return "", fmt.Errorf("output: write %q: %w", path, err)
	}
	return path, nil
}
