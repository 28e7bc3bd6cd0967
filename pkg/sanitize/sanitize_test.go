package sanitize

import (
	"strings"
	"testing"
)

func TestMessageRedactsLongTokens(t *testing.T) {
	s := New()
	msg := "request failed for key AbCdEf1234567890AbCdEf1234567890Xy on retry"
	got := s.Message(msg)
	if strings.Contains(got, "AbCdEf1234567890AbCdEf1234567890Xy") {
		t.Errorf("32+ char token should be redacted, got %q", got)
	}
	if !strings.Contains(got, Redacted) {
		t.Errorf("output should carry the redaction marker, got %q", got)
	}
}

func TestMessageRedactsAssignmentPatterns(t *testing.T) {
	s := New()
	cases := []string{
		"api_key=abc123 rejected",
		"API KEY: abc123 rejected",
		"apikey abc123 rejected",
		"secret=hunter2",
		"token: deadbeef",
		"Password=opensesame",
	}
	for _, msg := range cases {
		got := s.Message(msg)
		if strings.Contains(got, "abc123") || strings.Contains(got, "hunter2") ||
			strings.Contains(got, "deadbeef") || strings.Contains(got, "opensesame") {
			t.Errorf("Message(%q) = %q, credential fragment survived", msg, got)
		}
	}
}

func TestMessageRedactsConfiguredLiterals(t *testing.T) {
	// Shorter than the generic 32-char pattern: only the literal pass
	// catches it.
	s := New("shortsecret", "tiny-key")
	got := s.Message(`binance replied: "shortsecret is not authorized (tiny-key)"`)
	if strings.Contains(got, "shortsecret") || strings.Contains(got, "tiny-key") {
		t.Errorf("configured literals should always be redacted, got %q", got)
	}
}

func TestMessageLeavesOrdinaryTextAlone(t *testing.T) {
	s := New()
	msg := "order rejected: insufficient balance for BTCUSDT"
	if got := s.Message(msg); got != msg {
		t.Errorf("Message(%q) = %q, should be unchanged", msg, got)
	}
}

func TestMessageNeverLeaksSecret(t *testing.T) {
	secrets := []string{
		"aVeryLongAlphanumericSecret0123456789012345",
		"short1",
		"x9",
	}
	for _, secret := range secrets {
		s := New(secret)
		inputs := []string{
			"prefix " + secret + " suffix",
			secret,
			"secret=" + secret,
			strings.Repeat(secret, 3),
		}
		for _, in := range inputs {
			if got := s.Message(in); strings.Contains(got, secret) {
				t.Errorf("Message(%q) leaked configured secret %q: %q", in, secret, got)
			}
		}
	}
}

func TestDetailsRedactsSensitiveKeys(t *testing.T) {
	s := New()
	details := map[string]any{
		"api_key":  "whatever",
		"Token":    "whatever",
		"KEY":      "whatever",
		"symbol":   "BTCUSDT",
		"attempts": 3,
	}
	got := s.Details(details)
	for _, k := range []string{"api_key", "Token", "KEY"} {
		if got[k] != Redacted {
			t.Errorf("key %q should be redacted outright, got %v", k, got[k])
		}
	}
	if got["symbol"] != "BTCUSDT" {
		t.Errorf("benign string mangled: %v", got["symbol"])
	}
	if got["attempts"] != 3 {
		t.Errorf("non-string scalar should pass through, got %v", got["attempts"])
	}
}

func TestDetailsRecursesNestedStructures(t *testing.T) {
	s := New("mysecret")
	details := map[string]any{
		"outer": map[string]any{
			"secret": "value",
			"note":   "auth with mysecret failed",
		},
		"list": []any{
			"mysecret leaked here",
			map[string]any{"password": "pw"},
			7,
		},
	}
	got := s.Details(details)

	outer := got["outer"].(map[string]any)
	if outer["secret"] != Redacted {
		t.Error("nested sensitive key should be redacted")
	}
	if strings.Contains(outer["note"].(string), "mysecret") {
		t.Error("nested string value should be sanitized")
	}

	list := got["list"].([]any)
	if strings.Contains(list[0].(string), "mysecret") {
		t.Error("slice element should be sanitized")
	}
	if list[1].(map[string]any)["password"] != Redacted {
		t.Error("map inside slice should be recursed")
	}
	if list[2] != 7 {
		t.Error("scalar slice element should pass through")
	}
}

func TestDetailsDoesNotMutateInput(t *testing.T) {
	s := New()
	details := map[string]any{"token": "original"}
	_ = s.Details(details)
	if details["token"] != "original" {
		t.Error("input map must not be mutated")
	}
}

func TestDetailsNil(t *testing.T) {
	s := New()
	if got := s.Details(nil); got != nil {
		t.Errorf("Details(nil) = %v, want nil", got)
	}
}
