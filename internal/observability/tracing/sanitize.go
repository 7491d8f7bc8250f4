package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"account_id":              {},
	"pipeline":                {},
	"queue":                   {},
}

// SafeAttributes drops span attributes outside the allow list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError redacts error text that may embed request payloads.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	message := err.Error()
	if strings.ContainsAny(message, "{}") {
		return errors.New("request error")
	}
	return err
}
