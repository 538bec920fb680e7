package util

import (
	"errors"
	"net/url"
	"strings"
)

// CleanedUpError strips transport noise from wrapped errors before they are
// shown to a user. Unwrap still reaches the original error.
type CleanedUpError struct {
	Err error
}

func (e CleanedUpError) Error() string {
	if e.Err == nil {
		return ""
	}
	msg := e.Err.Error()
	var uerr *url.Error
	if errors.As(e.Err, &uerr) {
		// `Get "https://host/path?q=...": dial tcp: ...` becomes `dial tcp: ...`
		prefix := uerr.Op + " \"" + uerr.URL + "\": "
		msg = strings.Replace(msg, prefix, "", 1)
	}
	return strings.TrimSpace(msg)
}

func (e CleanedUpError) Unwrap() error {
	return e.Err
}
