package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantarc/binance-gateway/core"
)

// Exchange error codes the gateway cares about.
const (
	apiCodeTooManyRequests  = -1003
	apiCodeInvalidTimestamp = -1021
	apiCodeInvalidAPIKey    = -2015
	apiCodeNewOrderRejected = -2010
	apiCodeOrderNotFound    = -2013
)

// APIError is a structured rejection from the exchange.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e APIError) Error() string {
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return APIError{}, false
}

// IsAPIErrorCode reports whether err carries an APIError with the code.
func IsAPIErrorCode(err error, code int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

func parseAPIError(status int, body []byte) error {
	var wire apiErrorBody
	if err := json.Unmarshal(body, &wire); err == nil && wire.Msg != "" {
		return classifyAPIError(APIError{Status: status, Code: wire.Code, Msg: wire.Msg})
	}
	trimmed := strings.TrimSpace(string(body))
	if status/100 == 5 {
		return fmt.Errorf("%w: binance http error %d: %s", core.ErrNetwork, status, trimmed)
	}
	return fmt.Errorf("%w: binance http error %d: %s", core.ErrRemoteAPI, status, trimmed)
}

// classifyAPIError attaches the taxonomy kinds the rejection maps onto.
// HTTP 429/418 and code -1003 are the exchange telling us to back off, so
// they carry the rate-limit kind on top of the remote rejection.
func classifyAPIError(apiErr APIError) error {
	kinds := []error{apiErr, core.ErrRemoteAPI}
	if apiErr.Status == http.StatusTooManyRequests ||
		apiErr.Status == http.StatusTeapot ||
		apiErr.Code == apiCodeTooManyRequests {
		kinds = append(kinds, core.ErrRateLimited)
	}
	return errors.Join(kinds...)
}
