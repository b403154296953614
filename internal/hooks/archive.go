package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"imxup/internal/queue"
	"imxup/internal/uploader"
)

// buildZip packs the gallery's image files into a store-mode zip under the
// staging directory. The archive exists only for the duration of one hook
// invocation; the caller removes it unconditionally.
func buildZip(gallery *queue.Gallery, stagingDir string) (string, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	path := filepath.Join(stagingDir, fmt.Sprintf("gallery-%d-hook.zip", gallery.ID))
	if err := uploader.BuildArchive(gallery.SourcePath, path); err != nil {
		return "", err
	}
	return path, nil
}
