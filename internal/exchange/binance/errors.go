package binance

import (
	"errors"
	"strings"

	"oco-guard/internal/core"
)

const (
	apiCodeCancelRejected = -2011
	apiCodeOrderNotFound  = -2013
)

var apiErrorMessageKinds = map[string]error{
	"unknown order sent.":            core.ErrOrderNotFound,
	"order does not exist.":          core.ErrOrderNotFound,
	"order was canceled or expired.": core.ErrOrderExpired,
	"listenkey does not exist.":      core.ErrListenKeyExpiry,
}

func wrapAPIError(code int, msg string) error {
	return classifyAPIError(APIError{Code: code, Msg: msg})
}

func classifyAPIError(apiErr APIError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := strings.ToLower(strings.TrimSpace(apiErr.Msg))

	switch apiErr.Code {
	case apiCodeOrderNotFound:
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case apiCodeCancelRejected:
		kinds = appendErrorKind(kinds, core.ErrCancelRejected)
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	}

	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}

	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
