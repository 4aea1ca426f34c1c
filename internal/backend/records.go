package backend

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Kind names a remote collection.
type Kind string

const (
	KindResume      Kind = "resume"
	KindCoverLetter Kind = "cover-letter"
)

func (k Kind) path() string {
	switch k {
	case KindCoverLetter:
		return coverLettersPath
	default:
		return resumesPath
	}
}

// SortKey is the server side ordering of a list request.
type SortKey string

const (
	SortUpdatedDesc SortKey = "updated_desc"
	SortUpdatedAsc  SortKey = "updated_asc"
	SortCreatedDesc SortKey = "created_desc"
	SortCreatedAsc  SortKey = "created_asc"
	SortTitleAsc    SortKey = "title_asc"
	SortTitleDesc   SortKey = "title_desc"
)

var SortKeys = []SortKey{
	SortUpdatedDesc,
	SortUpdatedAsc,
	SortCreatedDesc,
	SortCreatedAsc,
	SortTitleAsc,
	SortTitleDesc,
}

func (s SortKey) Valid() bool {
	for _, k := range SortKeys {
		if k == s {
			return true
		}
	}
	return false
}

// Record is implemented by every resource returned from a collection endpoint.
type Record interface {
	GetID() string
	GetTitle() string
}

type Resume struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	TemplateID  string          `json:"template_id,omitempty"`
	PortfolioID string          `json:"portfolio_id,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

func (r Resume) GetID() string    { return r.ID }
func (r Resume) GetTitle() string { return r.Title }

type CoverLetter struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ResumeID  string          `json:"resume_id,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

func (c CoverLetter) GetID() string    { return c.ID }
func (c CoverLetter) GetTitle() string { return c.Title }

// ListParams is the collection-independent part of a list request.
type ListParams struct {
	Skip   int
	Limit  int
	Search string
	SortBy SortKey
}

// Page is one slice of a remote collection, already ordered by the server.
type Page[T any] struct {
	Items []T
	Total int
}

// Items stay raw per field so that opaque payloads keep their bytes.
type listResponse struct {
	Items []map[string]json.RawMessage `json:"items"`
	Total int                          `json:"total"`
}

var rawMessageType = reflect.TypeOf(json.RawMessage{})

// rawMessageHook keeps opaque payloads opaque. Raw input reaching a
// json.RawMessage field is passed through untouched, raw input reaching any
// other field is decoded first. Decoded input for a json.RawMessage field
// (patches) is re-encoded.
func rawMessageHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if data == nil {
		return data, nil
	}

	raw, isRaw := data.(json.RawMessage)
	switch {
	case to == rawMessageType && isRaw:
		return raw, nil
	case to == rawMessageType:
		return json.Marshal(data)
	case isRaw:
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		if decoded == nil {
			return reflect.Zero(to).Interface(), nil
		}
		return decoded, nil
	default:
		return data, nil
	}
}

// DecodeInto decodes loosely typed data (list items, patches) into a record
// using the record's json tags. Fields missing from input keep their value.
func DecodeInto(input any, target any) error {
	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook:       mapstructure.DecodeHookFuncType(rawMessageHook),
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	return nil
}

func decodePage[T any](resp *listResponse) (*Page[T], error) {
	items := make([]T, 0, len(resp.Items))
	if err := DecodeInto(resp.Items, &items); err != nil {
		return nil, err
	}

	return &Page[T]{Items: items, Total: resp.Total}, nil
}
