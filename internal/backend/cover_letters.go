package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	coverLettersPath = "/cover-letters"
)

type CoverLetterFilter struct {
	Skip     int     `query:"skip,always"`
	Limit    int     `query:"limit"`
	Title    string  `query:"title"`
	ResumeID string  `query:"resume_id"`
	SortBy   SortKey `query:"sort_by"`
}

func (c *Client) ListCoverLetters(ctx context.Context, filter CoverLetterFilter) (*Page[CoverLetter], error) {
	var resp listResponse
	if err := c.getJSON(ctx, coverLettersPath, buildParams(filter), &resp); err != nil {
		return nil, fmt.Errorf("list cover letters: %w", err)
	}

	return decodePage[CoverLetter](&resp)
}

func (c *Client) GetCoverLetter(ctx context.Context, id string) (*CoverLetter, error) {
	path, err := recordPath(KindCoverLetter, id)
	if err != nil {
		return nil, err
	}

	var letter CoverLetter
	if err := c.getJSON(ctx, path, nil, &letter); err != nil {
		return nil, fmt.Errorf("get cover letter %s: %w", id, err)
	}

	return &letter, nil
}

func (c *Client) UpdateCoverLetter(ctx context.Context, id string, patch map[string]any) (*CoverLetter, error) {
	path, err := recordPath(KindCoverLetter, id)
	if err != nil {
		return nil, err
	}

	var letter CoverLetter
	if err := c.sendJSON(ctx, http.MethodPatch, path, nil, patch, &letter); err != nil {
		return nil, fmt.Errorf("update cover letter %s: %w", id, err)
	}

	return &letter, nil
}

func (c *Client) DeleteCoverLetter(ctx context.Context, id string) error {
	path, err := recordPath(KindCoverLetter, id)
	if err != nil {
		return err
	}

	if err := c.sendJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete cover letter %s: %w", id, err)
	}

	return nil
}

func (c *Client) GetCoverLetterPdf(ctx context.Context, id string, timeout time.Duration) (PdfPayload, error) {
	return c.getPdf(ctx, KindCoverLetter, id, timeout)
}

// CoverLetterSource exposes the cover letter collection to a list controller.
type CoverLetterSource struct {
	Client   *Client
	ResumeID string
}

func (s *CoverLetterSource) List(ctx context.Context, p ListParams) (*Page[CoverLetter], error) {
	return s.Client.ListCoverLetters(ctx, CoverLetterFilter{
		Skip:     p.Skip,
		Limit:    p.Limit,
		Title:    p.Search,
		ResumeID: s.ResumeID,
		SortBy:   p.SortBy,
	})
}

func (s *CoverLetterSource) Delete(ctx context.Context, id string) error {
	return s.Client.DeleteCoverLetter(ctx, id)
}

func (s *CoverLetterSource) Update(ctx context.Context, id string, patch map[string]any) (*CoverLetter, error) {
	return s.Client.UpdateCoverLetter(ctx, id, patch)
}
