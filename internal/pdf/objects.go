package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const objectScheme = "blob:"

var ErrUnknownObject = errors.New("object url is not live")

// ObjectStore hands out object URLs for PDF bytes kept on a filesystem. An
// object lives until its URL is revoked.
type ObjectStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	objects map[string]string
}

func NewObjectStore(fs afero.Fs, dir string, logger *zap.Logger) (*ObjectStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "resume-desk-objects")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create objects dir %s: %w", dir, err)
	}

	return &ObjectStore{
		fs:      fs,
		dir:     dir,
		logger:  logger,
		objects: make(map[string]string),
	}, nil
}

func (s *ObjectStore) Create(data []byte) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".pdf")

	if err := afero.WriteFile(s.fs, path, data, 0o600); err != nil {
		return "", fmt.Errorf("store pdf object: %w", err)
	}

	objectURL := objectScheme + id

	s.mu.Lock()
	s.objects[objectURL] = path
	s.mu.Unlock()

	s.logger.Debug("object created", zap.String("url", objectURL), zap.String("size", units.HumanSize(float64(len(data)))))

	return objectURL, nil
}

func (s *ObjectStore) Read(objectURL string) ([]byte, error) {
	path, ok := s.Path(objectURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, objectURL)
	}

	return afero.ReadFile(s.fs, path)
}

// Path returns where the object bytes live, for handing to an external viewer.
func (s *ObjectStore) Path(objectURL string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.objects[objectURL]
	return path, ok
}

// Revoke frees the object. Unknown or already revoked URLs are ignored.
func (s *ObjectStore) Revoke(objectURL string) {
	s.mu.Lock()
	path, ok := s.objects[objectURL]
	delete(s.objects, objectURL)
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing revoked object", zap.String("url", objectURL), zap.Error(err))
		return
	}

	s.logger.Debug("object revoked", zap.String("url", objectURL))
}

// Live reports how many objects have not been revoked yet.
func (s *ObjectStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}
