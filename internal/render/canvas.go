package render

import (
	"fmt"

	"github.com/raysh454/webaudit/internal/blobstore"
)

// FileCanvas paints chart frames to a PNG file, replacing it atomically.
type FileCanvas struct {
	Path string
}

// NewFileCanvas returns a canvas for path, or nil when path is empty so
// the chart fails loudly on first use.
func NewFileCanvas(path string) Canvas {
	if path == "" {
		return nil
	}
	return &FileCanvas{Path: path}
}

func (f *FileCanvas) Paint(png []byte) error {
	if err := blobstore.AtomicWriteFile(f.Path, png, 0644); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return nil
}

// DiscardCanvas drops every frame. The chart legend is still printed.
type DiscardCanvas struct{}

func (DiscardCanvas) Paint([]byte) error { return nil }
