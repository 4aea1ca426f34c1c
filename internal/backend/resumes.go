package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	resumesPath = "/resumes"
)

type ResumeFilter struct {
	Skip       int     `query:"skip,always"`
	Limit      int     `query:"limit"`
	SearchTerm string  `query:"search_term"`
	TemplateID string  `query:"template_id"`
	SortBy     SortKey `query:"sort_by"`
}

func (c *Client) ListResumes(ctx context.Context, filter ResumeFilter) (*Page[Resume], error) {
	var resp listResponse
	if err := c.getJSON(ctx, resumesPath, buildParams(filter), &resp); err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}

	return decodePage[Resume](&resp)
}

func (c *Client) GetResume(ctx context.Context, id string) (*Resume, error) {
	path, err := recordPath(KindResume, id)
	if err != nil {
		return nil, err
	}

	var resume Resume
	if err := c.getJSON(ctx, path, nil, &resume); err != nil {
		return nil, fmt.Errorf("get resume %s: %w", id, err)
	}

	return &resume, nil
}

func (c *Client) UpdateResume(ctx context.Context, id string, patch map[string]any) (*Resume, error) {
	path, err := recordPath(KindResume, id)
	if err != nil {
		return nil, err
	}

	var resume Resume
	if err := c.sendJSON(ctx, http.MethodPatch, path, nil, patch, &resume); err != nil {
		return nil, fmt.Errorf("update resume %s: %w", id, err)
	}

	return &resume, nil
}

func (c *Client) DeleteResume(ctx context.Context, id string) error {
	path, err := recordPath(KindResume, id)
	if err != nil {
		return err
	}

	if err := c.sendJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete resume %s: %w", id, err)
	}

	return nil
}

func (c *Client) GetResumePdf(ctx context.Context, id string, timeout time.Duration) (PdfPayload, error) {
	return c.getPdf(ctx, KindResume, id, timeout)
}

// ResumeSource exposes the resume collection to a list controller.
type ResumeSource struct {
	Client     *Client
	TemplateID string
}

func (s *ResumeSource) List(ctx context.Context, p ListParams) (*Page[Resume], error) {
	return s.Client.ListResumes(ctx, ResumeFilter{
		Skip:       p.Skip,
		Limit:      p.Limit,
		SearchTerm: p.Search,
		TemplateID: s.TemplateID,
		SortBy:     p.SortBy,
	})
}

func (s *ResumeSource) Delete(ctx context.Context, id string) error {
	return s.Client.DeleteResume(ctx, id)
}

func (s *ResumeSource) Update(ctx context.Context, id string, patch map[string]any) (*Resume, error) {
	return s.Client.UpdateResume(ctx, id, patch)
}

func recordPath(kind Kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingRecord
	}

	return fmt.Sprintf("%s/%s", kind.path(), url.PathEscape(id)), nil
}
