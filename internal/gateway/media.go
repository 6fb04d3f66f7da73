package gateway

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"warelay/internal/domain"
)

// loadMedia reads a local file into a media payload. The type comes from the
// extension, falling back to content sniffing.
func loadMedia(path string) (*domain.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &domain.Media{
		MimeType: mimeType,
		Filename: filepath.Base(path),
		Data:     data,
	}, nil
}
