package tracing

import (
	"errors"
	"regexp"

	"go.opentelemetry.io/otel/attribute"
)

// Span attributes and recorded errors must never leak secrets or raw
// identifiers.
var deniedAttributeKeys = map[attribute.Key]struct{}{
	"api_key":       {},
	"authorization": {},
	"password":      {},
	"token":         {},
}

var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|bearer|token|secret|password)[=:\s]+\S+`)

// SafeAttributes drops attributes that could carry credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	safe := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, denied := deniedAttributeKeys[attr.Key]; denied {
			continue
		}
		safe = append(safe, attr)
	}
	return safe
}

// SafeError returns an error whose message is scrubbed of secret-looking
// substrings, or nil when the input is nil.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !secretPattern.MatchString(msg) {
		return err
	}
	return errors.New(secretPattern.ReplaceAllString(msg, "$1=[redacted]"))
}
