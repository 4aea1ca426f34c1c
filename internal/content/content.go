// Package content turns the opaque content payload of a resume or cover
// letter into sections that can be printed without guessing their shape.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	KindText       Kind = "text"
	KindList       Kind = "list"
	KindStructured Kind = "structured"
)

// Section is one top-level entry of a payload. Exactly one of Text, Items or
// Entries is set, according to Kind.
type Section struct {
	Key     string
	Kind    Kind
	Text    string
	Items   []string
	Entries []Entry
}

// Entry is one object of a structured section, flattened to ordered fields.
type Entry struct {
	Fields []Field
}

type Field struct {
	Key   string
	Value string
}

var ErrNotObject = errors.New("content payload is not a json object")

// Normalize parses raw and returns its sections in document order. Null
// sections are skipped; an empty payload yields no sections.
func Normalize(raw json.RawMessage) ([]Section, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var sections []Section
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read content key: %w", err)
		}
		key, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("read content %q: %w", key, err)
		}

		if section, ok := classify(key, value); ok {
			sections = append(sections, section)
		}
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return sections, nil
}

func classify(key string, value any) (Section, bool) {
	switch v := value.(type) {
	case nil:
		return Section{}, false
	case map[string]any:
		return Section{Key: key, Kind: KindStructured, Entries: []Entry{flatten(v)}}, true
	case []any:
		if hasObject(v) {
			entries := make([]Entry, 0, len(v))
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					entries = append(entries, flatten(obj))
					continue
				}
				if item != nil {
					entries = append(entries, Entry{Fields: []Field{{Value: scalar(item)}}})
				}
			}
			return Section{Key: key, Kind: KindStructured, Entries: entries}, true
		}

		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := scalar(item); s != "" {
				items = append(items, s)
			}
		}
		return Section{Key: key, Kind: KindList, Items: items}, true
	default:
		return Section{Key: key, Kind: KindText, Text: scalar(v)}, true
	}
}

func hasObject(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

// flatten renders nested values inline; fields are sorted because decoded
// maps carry no order.
func flatten(obj map[string]any) Entry {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		if obj[k] == nil {
			continue
		}
		fields = append(fields, Field{Key: k, Value: inline(obj[k])})
	}

	return Entry{Fields: fields}
}

func inline(value any) string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := inline(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		entry := flatten(v)
		parts := make([]string, 0, len(entry.Fields))
		for _, f := range entry.Fields {
			parts = append(parts, f.Key+": "+f.Value)
		}
		return strings.Join(parts, "; ")
	default:
		return scalar(v)
	}
}

func scalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case []any, map[string]any:
		return inline(v)
	default:
		return fmt.Sprint(v)
	}
}
