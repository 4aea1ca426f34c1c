package backend

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
)

type response struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}

	req = c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if len(q) > 0 {
		req.URL.RawQuery = q.Encode()
	}

	return req, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// do executes req within timeout and returns the decoded body. Non-2xx
// statuses become *APIError.
func (c *Client) do(req *http.Request, timeout time.Duration, limit int64) (*response, error) {
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	c.logger.Debug("make request", zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %s", ErrTooLarge, units.BytesSize(float64(limit)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, resp.Status, data)
		c.logger.Debug("request failed",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", apiErr.userMessage()),
		)
		return nil, apiErr
	}

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target any) error {
	return c.sendJSON(ctx, http.MethodGet, path, q, nil, target)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, q url.Values, payload, target any) error {
	req, err := c.newRequest(ctx, method, path, q, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", contentType)

	resp, err := c.do(req, c.RequestTimeout, 0)
	if err != nil {
		return err
	}

	if target == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.body, target); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}

// buildParams turns a filter struct into query values using its query tags.
// Zero values are omitted unless the tag carries the "always" option.
func buildParams(filter any) url.Values {
	q := url.Values{}

	v := reflect.Indirect(reflect.ValueOf(filter))
	if v.Kind() != reflect.Struct {
		return q
	}

	for _, field := range reflect.VisibleFields(v.Type()) {
		if field.Anonymous || !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("query")
		if tag == "" || tag == "-" {
			continue
		}

		key, opts, _ := strings.Cut(tag, ",")
		value := v.FieldByIndex(field.Index)

		if value.IsZero() && opts != "always" {
			continue
		}

		if value.Kind() == reflect.Slice {
			for i := 0; i < value.Len(); i++ {
				q.Add(key, fmt.Sprintf("%v", value.Index(i).Interface()))
			}
			continue
		}

		q.Set(key, fmt.Sprintf("%v", value.Interface()))
	}

	return q
}
