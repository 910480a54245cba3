// Package output persists analysis artifacts to the output directory.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"findoc/internal/logger"
)

// Writer saves analysis results as flat files under a single directory.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates the output directory if needed and returns a writer for it.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Writer{
		dir: dir,
		log: logger.WithComponent("output"),
	}, nil
}

// Dir returns the output directory path.
func (w *Writer) Dir() string {
	return w.dir
}

// SaveText writes content to <name> inside the output directory and returns
// the full path.
func (w *Writer) SaveText(name, content string) (string, error) {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.log.Debug().
		Str("path", path).
		Int("bytes", len(content)).
		Msg("Saved text artifact")
	return path, nil
}

// SaveJSON marshals v with indentation and writes it to <name> inside the
// output directory, returning the full path.
func (w *Writer) SaveJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.log.Debug().
		Str("path", path).
		Int("bytes", len(data)).
		Msg("Saved JSON artifact")
	return path, nil
}
