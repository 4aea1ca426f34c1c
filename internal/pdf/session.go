// Package pdf retrieves rendered documents and owns the local object a
// binary response is stored in until the session is closed.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/spigell/resume-desk/internal/backend"
	"github.com/spigell/resume-desk/internal/logger"
)

const (
	DefaultTimeout = 120 * time.Second

	retrieveFallback = "Failed to load PDF"
	downloadFallback = "Failed to download PDF"
)

var (
	ErrNoSource   = errors.New("no pdf has been retrieved")
	ErrSuperseded = errors.New("pdf retrieval superseded")
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Source is where a ready document can be read from: RemoteSource or LocalSource.
type Source interface {
	isSource()
}

type RemoteSource struct {
	URL string
}

type LocalSource struct {
	ObjectURL string
}

func (RemoteSource) isSource() {}
func (LocalSource) isSource()  {}

// Backend is the part of the API client a session needs.
type Backend interface {
	GetPdf(ctx context.Context, kind backend.Kind, id string, timeout time.Duration) (backend.PdfPayload, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Error carries the message shown to the user for a failed operation.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout time.Duration
}

type Session struct {
	backend Backend
	objects *ObjectStore
	saver   Saver
	logger  *zap.Logger

	mu         sync.Mutex
	status     Status
	source     Source
	doc        Document
	errMsg     string
	generation uint64
	cancel     context.CancelFunc
}

func NewSession(b Backend, objects *ObjectStore, saver Saver, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		backend: b,
		objects: objects,
		saver:   saver,
		logger:  log,
		status:  StatusIdle,
	}
}

// Retrieve checks the document's preconditions and requests its PDF. A newer
// Retrieve or a Close while the request is in flight discards its result.
func (s *Session) Retrieve(ctx context.Context, doc Document, opts Options) error {
	if err := CheckPrecondition(doc); err != nil {
		return err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.status = StatusLoading
	s.doc = doc
	s.errMsg = ""
	s.mu.Unlock()

	log := logger.WithResource(s.logger, string(doc.Kind), doc.ID)
	log.Debug("retrieving pdf", zap.Duration("timeout", timeout))

	payload, err := s.backend.GetPdf(reqCtx, doc.Kind, doc.ID, timeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		log.Debug("discarding superseded pdf response")
		return ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		return s.failLocked(log, "retrieve", retrieveFallback, err)
	}

	s.releaseLocked()

	switch p := payload.(type) {
	case backend.RemotePdf:
		s.source = RemoteSource{URL: p.URL}
	case backend.InlinePdf:
		objectURL, err := s.objects.Create(p.Data)
		if err != nil {
			return s.failLocked(log, "retrieve", retrieveFallback, err)
		}
		s.source = LocalSource{ObjectURL: objectURL}
		log.Debug("pdf stored locally", zap.String("size", units.HumanSize(float64(len(p.Data)))))
	default:
		return s.failLocked(log, "retrieve", retrieveFallback, fmt.Errorf("unexpected pdf payload %T", payload))
	}

	s.status = StatusReady
	return nil
}

// View loads the current document and returns a pager over it.
func (s *Session) View(ctx context.Context) (*Viewer, error) {
	data, err := s.bytes(ctx)
	if err != nil {
		return nil, err
	}

	viewer, err := NewViewer(data)
	if err != nil {
		return nil, &Error{Op: "view", Message: backend.ErrorMessage(err, retrieveFallback), Err: err}
	}

	return viewer, nil
}

// Download saves the current document under a sanitized form of name and
// returns the written path.
func (s *Session) Download(ctx context.Context, name string) (string, error) {
	data, err := s.bytes(ctx)
	if err != nil {
		return "", err
	}

	path, err := s.saver.Save(name, data)
	if err != nil {
		return "", &Error{Op: "download", Message: backend.ErrorMessage(err, downloadFallback), Err: err}
	}

	s.logger.Info("pdf saved", zap.String("path", path), zap.String("size", units.HumanSize(float64(len(data)))))

	return path, nil
}

func (s *Session) bytes(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	switch src := source.(type) {
	case LocalSource:
		data, err := s.objects.Read(src.ObjectURL)
		if err != nil {
			return nil, &Error{Op: "read", Message: backend.ErrorMessage(err, downloadFallback), Err: err}
		}
		return data, nil
	case RemoteSource:
		data, err := s.backend.Download(ctx, src.URL)
		if err != nil {
			return nil, &Error{Op: "download", Message: backend.ErrorMessage(err, downloadFallback), Err: err}
		}
		return data, nil
	default:
		return nil, ErrNoSource
	}
}

// Close revokes the local object, cancels a request in flight and returns
// the session to idle. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.releaseLocked()
	s.status = StatusIdle
	s.errMsg = ""
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Err returns the message of the last failed retrieval, if any.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Session) failLocked(log *zap.Logger, op, fallback string, err error) error {
	s.releaseLocked()
	s.status = StatusError
	s.errMsg = backend.ErrorMessage(err, fallback)

	log.Warn("pdf retrieval failed", zap.String("error", logger.TruncateForLog(s.errMsg, 200)))

	return &Error{Op: op, Message: s.errMsg, Err: err}
}

func (s *Session) releaseLocked() {
	if local, ok := s.source.(LocalSource); ok {
		s.objects.Revoke(local.ObjectURL)
	}
	s.source = nil
}
