package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
)

// FileSink copies log artifacts into a local directory, keeping their blob paths.
type FileSink struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileSink creates a file sink rooted at baseDir, creating the directory if needed.
func NewFileSink(baseDir string, log *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileSink{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put writes data to baseDir/blobPath.
func (s *FileSink) Put(ctx context.Context, blobPath string, data []byte) error {
	filePath := s.getFilePath(blobPath)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.log.Debug("Stored log artifact in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Name returns a unique identifier for this sink.
func (s *FileSink) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI that identifies this sink.
func (s *FileSink) LocationURI() string {
	return s.locationURI
}

// getFilePath maps a blob path below baseDir; ".." segments cannot escape it.
func (s *FileSink) getFilePath(blobPath string) string {
	clean := path.Clean("/" + TrimBlobPath(blobPath))
	return filepath.Join(s.baseDir, filepath.FromSlash(clean))
}
