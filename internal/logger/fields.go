package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the LLM or embedding provider name
	FieldProvider = "provider"
	// FieldModel is the structured log field key for the model identifier
	FieldModel = "model"
	// FieldUser is the structured log field key for the user a run belongs to
	FieldUser = "user_id"
	// FieldComponent names the engine that emitted the entry
	FieldComponent = "component"
)

// StringField describes a string-valued structured logging field
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
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields, defaulting to a no-op logger when nil
func WithFields(l *zap.Logger, fields ...zap.Field) *zap.Logger {
	l = OrNop(l)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// ProviderFields describes an external provider and model; empty values are dropped
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// ForProvider attaches provider and model fields to l
func ForProvider(l *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(l, ProviderFields(provider, model)...)
}

// ForComponent names the emitting engine on every entry of the returned logger
func ForComponent(l *zap.Logger, component string) *zap.Logger {
	return WithFields(l, StringFields(StringField{Key: FieldComponent, Value: component})...)
}
