package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldResource is the structured log field key for the collection kind.
	FieldResource = "resource"
	// FieldResourceID is the structured log field key for a record identifier.
	FieldResourceID = "resource_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ResourceFields describes the record an operation works on.
func ResourceFields(kind, id string) []zap.Field {
	return StringFields(
		StringField{Key: FieldResource, Value: kind},
		StringField{Key: FieldResourceID, Value: id},
	)
}

func WithResource(logger *zap.Logger, kind, id string) *zap.Logger {
	return WithFields(logger, ResourceFields(kind, id)...)
}
