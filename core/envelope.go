package core

import "time"

// Envelope is the standardized wrapper every tool call returns. Exactly one
// branch is populated: Data/Timestamp/Metadata on success, Error on failure.
type Envelope struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     *ErrorBody     `json:"error,omitempty"`
}

// ErrorBody is the failure branch of the envelope.
type ErrorBody struct {
	Type      ErrorKind `json:"type"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

// SanitizeFunc redacts sensitive substrings from outbound error text.
type SanitizeFunc func(string) string

// Builder constructs envelopes. Error messages pass through the sanitize
// function before embedding; success paths are never sanitized.
type Builder struct {
	sanitize SanitizeFunc
	clock    func() time.Time
}

// NewBuilder returns a Builder using sanitize on every error message.
// A nil sanitize leaves messages untouched.
func NewBuilder(sanitize SanitizeFunc) *Builder {
	if sanitize == nil {
		sanitize = func(s string) string { return s }
	}
	return &Builder{sanitize: sanitize, clock: time.Now}
}

// Meta builds the standard metadata block. Extra key/value pairs are merged
// in after source and endpoint.
func Meta(source, endpoint string, extra map[string]any) map[string]any {
	meta := map[string]any{
		"source":   source,
		"endpoint": endpoint,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// Success wraps data in a success envelope stamped with the current
// epoch-millisecond time.
func (b *Builder) Success(data any, metadata map[string]any) *Envelope {
	return &Envelope{
		Success:   true,
		Data:      data,
		Timestamp: b.clock().UnixMilli(),
		Metadata:  metadata,
	}
}

// Error wraps a failure in an error envelope. The message is sanitized
// before embedding.
func (b *Builder) Error(kind ErrorKind, message string) *Envelope {
	return &Envelope{
		Success: false,
		Error: &ErrorBody{
			Type:      kind,
			Message:   b.sanitize(message),
			Timestamp: b.clock().UnixMilli(),
		},
	}
}

// FromError classifies err and builds the matching error envelope.
func (b *Builder) FromError(err error) *Envelope {
	return b.Error(Classify(err), err.Error())
}
