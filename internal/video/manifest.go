package video

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/plan"
)

func writeManifest(job *Job, scenes []plan.Entry, s config.EncodeSettings) error {
	f, err := os.Create(job.ManifestPath)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	var black string
	w := bufio.NewWriter(f)
	for _, scene := range scenes {
		path := scene.ImagePath
		if path == "" {
			if black == "" {
				black = filepath.Join(job.WorkDir, BlackFrameName)
				if err := writeBlackFrame(black, s.Width, s.Height); err != nil {
					return err
				}
			}
			path = black
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		fmt.Fprintf(w, "file '%s'\n", EscapeManifestPath(abs))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}

// EscapeManifestPath prepares a path for a single-quoted concat demuxer entry.
func EscapeManifestPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.ReplaceAll(path, "'", `'\''`)
}

func writeBlackFrame(path string, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create black frame: %w", err)
	}
	defer f.Close()

	// zero-valued gray pixels are opaque black
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, width, height))); err != nil {
		return fmt.Errorf("encode black frame: %w", err)
	}
	return f.Close()
}
