package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
)

// ErrorCodeCustomerNotLinked is sent by the platform when the scanned
// customer exists but has no loyalty card at the scanning merchant.
const ErrorCodeCustomerNotLinked = "CUSTOMER_NOT_LINKED"

// APIError is returned when the platform answers with a non-success
// envelope or a non-2xx status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Errors     []string
	Data       json.RawMessage
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the platform rejected the terminal's token.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// NotLinkedError is returned by ResolveCustomerByCode when the customer is
// known to the platform but not registered with the merchant.
type NotLinkedError struct {
	Customer model.CustomerIdentity
	Message  string
}

func (e *NotLinkedError) Error() string {
	if e.Message != "" {
		return "customer not linked to merchant: " + e.Message
	}
	return "customer not linked to merchant"
}

// ErrorMessage extracts the operator-facing message from err, falling back
// to fallback when err carries no platform message.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var notLinked *NotLinkedError
	if errors.As(err, &notLinked) && notLinked.Message != "" {
		return notLinked.Message
	}
	return fallback
}
