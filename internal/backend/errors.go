package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyPdf      = errors.New("backend returned an empty pdf")
	ErrNoPdfURL      = errors.New("pdf response carries no pdf_url")
	ErrTooLarge      = errors.New("response exceeds the configured size limit")
	ErrMissingRecord = errors.New("record id is required")
)

// APIError is returned for every non-2xx response. Only the first non-empty of
// Detail, Message and Text is meant for users.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
	Message    string
	Text       string

	// Undecodable is set when a body was present but is not text.
	Undecodable bool
}

func (e *APIError) Error() string {
	if msg := e.userMessage(); msg != "" {
		return fmt.Sprintf("bad status: %s: %s", e.Status, msg)
	}
	return fmt.Sprintf("bad status: %s", e.Status)
}

func (e *APIError) userMessage() string {
	for _, s := range []string{e.Detail, e.Message, e.Text} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationIssue struct {
	Msg string `json:"msg"`
}

func newAPIError(statusCode int, status string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Status: status}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return apiErr
	}

	var parsed errorBody
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &parsed) == nil {
		apiErr.Detail = decodeDetail(parsed.Detail)
		apiErr.Message = parsed.Message
		return apiErr
	}

	// Binary endpoints report errors as a byte payload; it is only useful if it is text.
	if utf8.Valid(trimmed) && !bytes.ContainsRune(trimmed, 0) {
		apiErr.Text = string(trimmed)
	} else {
		apiErr.Undecodable = true
	}

	return apiErr
}

// decodeDetail accepts both a plain string and a list of validation issues.
func decodeDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var issues []validationIssue
	if err := json.Unmarshal(raw, &issues); err == nil {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			if m := strings.TrimSpace(issue.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}

// ErrorMessage returns the text a user should see for err: the backend detail,
// then the backend message, then decoded error text, then err itself, and
// finally fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.userMessage(); msg != "" {
			return msg
		}
		if apiErr.Undecodable {
			return fallback
		}
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}

	return fallback
}
