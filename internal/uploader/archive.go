package uploader

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BuildArchive packs the supported images in sourceDir into a store-mode
// (uncompressed) zip at destPath. Used for the mirror payload sent to
// secondary hosts and for the just-in-time archive handed to hooks. A
// partially written archive is removed on failure.
func BuildArchive(sourceDir, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	writer := zip.NewWriter(out)

	fail := func(err error) error {
		writer.Close()
		out.Close()
		os.Remove(destPath)
		return err
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fail(fmt.Errorf("read gallery folder: %w", err))
	}
	packed := 0
	for _, entry := range entries {
		if entry.IsDir() || !SupportedImage(entry.Name()) {
			continue
		}
		dst, err := writer.CreateHeader(&zip.FileHeader{Name: entry.Name(), Method: zip.Store})
		if err != nil {
			return fail(fmt.Errorf("archive entry %s: %w", entry.Name(), err))
		}
		src, err := os.Open(filepath.Join(sourceDir, entry.Name()))
		if err != nil {
			return fail(fmt.Errorf("open %s: %w", entry.Name(), err))
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return fail(fmt.Errorf("pack %s: %w", entry.Name(), err))
		}
		packed++
	}
	if packed == 0 {
		return fail(fmt.Errorf("%s contains no supported images", sourceDir))
	}

	if err := writer.Close(); err != nil {
		return fail(fmt.Errorf("finish archive: %w", err))
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}
