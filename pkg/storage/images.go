package storage

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ImageStore persists lesson attachments on disk under a base directory.
type ImageStore struct {
	baseDir string
}

// NewImageStore ensures the base directory exists and returns a handle.
func NewImageStore(baseDir string) (*ImageStore, error) {
	if baseDir == "" {
		baseDir = "./images"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	return &ImageStore{baseDir: baseDir}, nil
}

// SaveBytes writes image data to a freshly named file and returns its path.
func (s *ImageStore) SaveBytes(data []byte) (string, error) {
	name := fmt.Sprintf("lesson_image_%s.img", uuid.New().String())
	path := filepath.Join(s.baseDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return path, nil
}

// Exists reports whether the referenced file is present.
func (s *ImageStore) Exists(path string) bool {
	info, err := os.Stat(s.resolve(path))
	return err == nil && !info.IsDir()
}

// Delete removes a stored file if present. Deleting a missing file is a no-op.
func (s *ImageStore) Delete(path string) error {
	if err := os.Remove(s.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image file: %w", err)
	}
	return nil
}

// Decodable reports whether the file parses as an image. Only the header is
// read, matching a bounds-only bitmap decode.
func (s *ImageStore) Decodable(path string) bool {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		return false
	}
	defer file.Close() //nolint:errcheck

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return false
	}
	return cfg.Width > 0 && cfg.Height > 0
}

// Path exposes the resolved absolute location (useful for debugging).
func (s *ImageStore) Path(filename string) string {
	return s.resolve(filename)
}

func (s *ImageStore) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}
