// Package sanitize redacts credential-like material from outbound error
// text and structured error details. Every error path runs through here
// before an envelope or log line is built; success payloads never do.
package sanitize

import (
	"regexp"
	"strings"
)

// Redacted replaces every matched sensitive substring.
const Redacted = "[REDACTED]"

// Patterns cover long alphanumeric runs that look like API keys, plus
// key/secret/token/password assignment fragments. Compiled once.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`),
	regexp.MustCompile(`(?i)api[_\s-]*key[:\s=]*[A-Za-z0-9]+`),
	regexp.MustCompile(`(?i)secret[:\s=]*[A-Za-z0-9]+`),
	regexp.MustCompile(`(?i)token[:\s=]*[A-Za-z0-9]+`),
	regexp.MustCompile(`(?i)password[:\s=]*[A-Za-z0-9]+`),
}

// sensitiveKeys are detail keys whose values are redacted outright.
var sensitiveKeys = map[string]struct{}{
	"api_key":  {},
	"secret":   {},
	"password": {},
	"token":    {},
	"key":      {},
}

// Sanitizer redacts configured credential literals in addition to the
// generic patterns. The literals come from the validated configuration, so
// even short secrets never survive into caller-visible text.
type Sanitizer struct {
	literals []string
}

// New returns a Sanitizer that additionally redacts each non-empty literal.
func New(literals ...string) *Sanitizer {
	s := &Sanitizer{}
	for _, lit := range literals {
		if lit != "" {
			s.literals = append(s.literals, lit)
		}
	}
	return s
}

// Message redacts credential-like substrings from msg.
func (s *Sanitizer) Message(msg string) string {
	out := msg
	for _, lit := range s.literals {
		out = strings.ReplaceAll(out, lit, Redacted)
	}
	for _, pat := range sensitivePatterns {
		out = pat.ReplaceAllString(out, Redacted)
	}
	return out
}

// Details returns a sanitized copy of details. Keys named like credentials
// are redacted outright; string values run through Message; nested maps and
// slices are recursed. The input is never mutated.
func (s *Sanitizer) Details(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			out[key] = Redacted
			continue
		}
		out[key] = s.value(value)
	}
	return out
}

func (s *Sanitizer) value(v any) any {
	switch typed := v.(type) {
	case string:
		return s.Message(typed)
	case map[string]any:
		return s.Details(typed)
	case []any:
		out := make([]any, len(typed))
		for i, elem := range typed {
			out[i] = s.value(elem)
		}
		return out
	default:
		return v
	}
}
