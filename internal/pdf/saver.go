package pdf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	defaultFilename = "document"
	pdfExt          = ".pdf"
)

type Saver interface {
	Save(name string, data []byte) (string, error)
}

// DiskSaver writes downloads into a directory, never overwriting a file.
type DiskSaver struct {
	fs  afero.Fs
	dir string
}

func NewDiskSaver(fs afero.Fs, dir string) *DiskSaver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &DiskSaver{fs: fs, dir: dir}
}

func (s *DiskSaver) Save(name string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	path, err := s.freePath(SanitizeFilename(name))
	if err != nil {
		return "", err
	}

	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}

	return path, nil
}

func (s *DiskSaver) freePath(name string) (string, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)

	candidate := filepath.Join(s.dir, name)
	for i := 1; ; i++ {
		exists, err := afero.Exists(s.fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(s.dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
}

// SanitizeFilename keeps a suggested name usable as a single file name with a
// .pdf extension.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	name = strings.Trim(name, ". ")
	if strings.EqualFold(name, pdfExt[1:]) || name == "" {
		name = defaultFilename
	}

	if !strings.EqualFold(filepath.Ext(name), pdfExt) {
		name += pdfExt
	}

	return name
}
