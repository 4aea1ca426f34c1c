package pdf

import (
	"fmt"
	"strings"

	"github.com/spigell/resume-desk/internal/backend"
)

// Document identifies what a session renders, with the associations the
// backend needs before it can produce a PDF.
type Document struct {
	Kind        backend.Kind
	ID          string
	Title       string
	PortfolioID string
}

func ResumeDocument(r backend.Resume) Document {
	return Document{
		Kind:        backend.KindResume,
		ID:          r.ID,
		Title:       r.Title,
		PortfolioID: r.PortfolioID,
	}
}

func CoverLetterDocument(c backend.CoverLetter) Document {
	return Document{
		Kind:  backend.KindCoverLetter,
		ID:    c.ID,
		Title: c.Title,
	}
}

// PreconditionError means the document is missing an association; no request
// was made. Remediation tells the user how to fix it.
type PreconditionError struct {
	Association string
	Message     string
	Remediation string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.Association, e.Message)
}

// CheckPrecondition must pass before a retrieval is attempted.
func CheckPrecondition(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return backend.ErrMissingRecord
	}

	if doc.Kind == backend.KindResume && strings.TrimSpace(doc.PortfolioID) == "" {
		return &PreconditionError{
			Association: "portfolio",
			Message:     "this resume has no portfolio attached, its PDF cannot be generated",
			Remediation: "attach a portfolio to the resume and try again",
		}
	}

	return nil
}
