package salesforce

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthenticationExpired is returned on a 401; the cached session has
	// already been invalidated when callers see it.
	ErrAuthenticationExpired = errors.New("authentication failed, please refresh the Salesforce page and try again")

	// ErrNotFound is returned when a valid request yields no record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned when a resource id is empty or malformed.
	ErrInvalidID = errors.New("invalid resource id")
)

// APIError is a non-2xx, non-401 response from the Salesforce API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API call failed: %d %s", e.Status, http.StatusText(e.Status))
}

// NetworkError wraps transport failures such as DNS errors, refused
// connections or TLS problems.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return "network error reaching " + e.URL + ". This is usually caused by domain restrictions: " +
		"check that the host is your org's My Domain or setup domain and try refreshing the page"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
