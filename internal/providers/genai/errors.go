package genai

import (
	"errors"
	"net/http"
	"strings"

	"mediagen/internal/domain"
)

const providerName = "gemini"

// classifyStatus maps an HTTP failure onto the retry taxonomy.
func classifyStatus(status int, message string) domain.ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ProviderPermanent
	case status == http.StatusNotFound:
		if strings.Contains(strings.ToLower(message), "not supported") {
			return domain.ProviderUnsupported
		}
		return domain.ProviderPermanent
	case status == http.StatusBadRequest, status == http.StatusMethodNotAllowed, status == http.StatusNotImplemented:
		return domain.ProviderUnsupported
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return domain.ProviderTransient
	default:
		return domain.ProviderPermanent
	}
}

func statusError(op string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.ProviderError{
		Op:         op,
		Provider:   providerName,
		Kind:       classifyStatus(status, message),
		StatusCode: status,
		Err:        errors.New(message),
	}
}

func transportError(op string, err error) error {
	return &domain.ProviderError{Op: op, Provider: providerName, Kind: domain.ProviderTransient, Err: err}
}

func permanentError(op string, err error) error {
	return &domain.ProviderError{Op: op, Provider: providerName, Kind: domain.ProviderPermanent, Err: err}
}

func unsupportedError(op string, err error) error {
	return &domain.ProviderError{Op: op, Provider: providerName, Kind: domain.ProviderUnsupported, Err: err}
}
