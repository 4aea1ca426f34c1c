package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrNoPages = errors.New("pdf reports no pages")

// Viewer pages through a loaded document. Moving past either end does nothing.
type Viewer struct {
	pages   int
	current int
}

func NewViewer(data []byte) (*Viewer, error) {
	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read pdf page count: %w", err)
	}
	if count < 1 {
		return nil, ErrNoPages
	}

	return &Viewer{pages: count, current: 1}, nil
}

func (v *Viewer) Page() int  { return v.current }
func (v *Viewer) Pages() int { return v.pages }

func (v *Viewer) Next() bool {
	return v.GoTo(v.current + 1)
}

func (v *Viewer) Prev() bool {
	return v.GoTo(v.current - 1)
}

// GoTo reports whether the page changed.
func (v *Viewer) GoTo(page int) bool {
	if page < 1 || page > v.pages || page == v.current {
		return false
	}
	v.current = page
	return true
}
