package core

import (
	"context"
	"errors"
)

var (
	// ErrConfig indicates the credential/environment configuration is invalid.
	// Fatal at startup: no tool call may reach the exchange until resolved.
	ErrConfig = errors.New("invalid configuration")
	// ErrClientInit indicates exchange client construction failed. Recoverable:
	// the next client access retries construction from scratch.
	ErrClientInit = errors.New("client initialization failed")
	// ErrRateLimited indicates the request quota would be exceeded. The caller
	// should back off; the gateway never queues or retries on its behalf.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrValidation indicates a caller-input fault. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork indicates a transient transport failure, including timeouts.
	ErrNetwork = errors.New("network failure")
	// ErrRemoteAPI indicates the exchange rejected a well-formed request.
	ErrRemoteAPI = errors.New("exchange rejected request")
)

// ErrorKind is the error category exposed to callers in failure envelopes.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindRemoteAPI  ErrorKind = "binance_api_error"
	KindRateLimit  ErrorKind = "rate_limit_exceeded"
	KindNetwork    ErrorKind = "network_error"
	KindTool       ErrorKind = "tool_error"
)

// Classify maps an error chain onto the caller-facing kind. Configuration
// and validation faults share a kind: both mean the request never reached
// the exchange. Unrecognized errors fall through to KindTool.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindTool
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfig):
		return KindValidation
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrRemoteAPI):
		return KindRemoteAPI
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrClientInit),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindTool
	}
}
