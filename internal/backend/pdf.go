package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"
)

const (
	pdfMediaType = "application/pdf"
	pdfSuffix    = "/pdf"
)

// PdfPayload is what a PDF endpoint answered with: either RemotePdf or InlinePdf.
type PdfPayload interface {
	isPdfPayload()
}

// RemotePdf points at an already rendered document.
type RemotePdf struct {
	URL string
}

// InlinePdf carries the document bytes.
type InlinePdf struct {
	Data []byte
}

func (RemotePdf) isPdfPayload() {}
func (InlinePdf) isPdfPayload() {}

type pdfURLBody struct {
	PdfURL string `json:"pdf_url"`
}

// GetPdf requests the PDF of a document of the given kind. timeout is passed
// to the backend and also bounds the request itself.
func (c *Client) GetPdf(ctx context.Context, kind Kind, id string, timeout time.Duration) (PdfPayload, error) {
	switch kind {
	case KindResume:
		return c.GetResumePdf(ctx, id, timeout)
	case KindCoverLetter:
		return c.GetCoverLetterPdf(ctx, id, timeout)
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
}

func (c *Client) getPdf(ctx context.Context, kind Kind, id string, timeout time.Duration) (PdfPayload, error) {
	path, err := recordPath(kind, id)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if timeout > 0 {
		q.Set("timeout", strconv.Itoa(timeoutSeconds(timeout)))
	}

	req, err := c.newRequest(ctx, http.MethodGet, path+pdfSuffix, q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", pdfMediaType+", "+contentType)

	requestTimeout := c.RequestTimeout
	if timeout > 0 {
		requestTimeout = timeout + pdfGrace
	}

	resp, err := c.do(req, requestTimeout, c.MaxDownloadSize)
	if err != nil {
		return nil, fmt.Errorf("get %s %s pdf: %w", kind, id, err)
	}

	payload, err := narrowPdf(resp.contentType, resp.body)
	if err != nil {
		return nil, fmt.Errorf("get %s %s pdf: %w", kind, id, err)
	}

	switch p := payload.(type) {
	case RemotePdf:
		c.logger.Debug("pdf is served remotely", zap.String("id", id), zap.String("url", p.URL))
	case InlinePdf:
		c.logger.Debug("pdf is served inline", zap.String("id", id), zap.String("size", units.HumanSize(float64(len(p.Data)))))
	}

	return payload, nil
}

// timeoutSeconds rounds up so that a positive timeout never reaches the
// backend as zero.
func timeoutSeconds(timeout time.Duration) int {
	return int(math.Ceil(timeout.Seconds()))
}

// narrowPdf decides which of the two response shapes arrived. JSON is
// recognised by media type, or by shape when the media type is not PDF.
func narrowPdf(contentTypeHeader string, body []byte) (PdfPayload, error) {
	mediaType, _, _ := mime.ParseMediaType(contentTypeHeader)

	trimmed := bytes.TrimSpace(body)
	isJSON := mediaType == contentType ||
		(mediaType != pdfMediaType && len(trimmed) > 0 && trimmed[0] == '{')

	if isJSON {
		var parsed pdfURLBody
		if err := json.Unmarshal(trimmed, &parsed); err != nil {
			return nil, fmt.Errorf("decode pdf response: %w", err)
		}

		pdfURL := strings.TrimSpace(parsed.PdfURL)
		if pdfURL == "" {
			return nil, ErrNoPdfURL
		}

		return RemotePdf{URL: pdfURL}, nil
	}

	if len(body) == 0 {
		return nil, ErrEmptyPdf
	}

	return InlinePdf{Data: body}, nil
}

// Download fetches an absolute URL handed out by the backend and returns its
// bytes. The bearer token is not sent, the URL usually points at a CDN.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse download url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported download url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	resp, err := c.do(req, c.RequestTimeout, c.MaxDownloadSize)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", parsed.Redacted(), err)
	}

	if len(resp.body) == 0 {
		return nil, ErrEmptyPdf
	}

	return resp.body, nil
}
