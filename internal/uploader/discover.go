package uploader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"imxup/internal/queue"
	"imxup/internal/services"
)

// imageExtensions lists the file types accepted into a gallery. Everything
// else in the folder is ignored during the scan.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
}

// SupportedImage reports whether the file name carries an accepted image
// extension.
func SupportedImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// scanDir discovers the gallery's image files in natural (human) filename
// order, so "img2.jpg" sorts before "img10.jpg". The returned files carry
// name, absolute path, byte size and position.
func scanDir(dir string) ([]queue.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "uploader", "scan", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !SupportedImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return nil, services.Wrap(services.ErrValidation, "uploader", "scan",
			fmt.Sprintf("%s contains no supported images", dir), nil)
	}

	collator := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(names, func(i, j int) bool {
		return collator.CompareString(names[i], names[j]) < 0
	})

	files := make([]queue.File, 0, len(names))
	for position, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "uploader", "scan", path, err)
		}
		files = append(files, queue.File{
			Name:     name,
			Path:     path,
			Bytes:    info.Size(),
			Position: position,
		})
	}
	return files, nil
}
