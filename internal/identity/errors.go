package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession is returned by AccessToken when nobody is signed in.
var ErrNoSession = errors.New("not signed in")

// AuthRequestError is returned when a magic-link request fails.
type AuthRequestError struct {
	Email  string
	Reason string
	Err    error
}

func (e *AuthRequestError) Error() string { return e.Reason }
func (e *AuthRequestError) Unwrap() error { return e.Err }

// AuthQueryError is returned when the current session cannot be retrieved or refreshed.
type AuthQueryError struct {
	Reason string
	Err    error
}

func (e *AuthQueryError) Error() string { return e.Reason }
func (e *AuthQueryError) Unwrap() error { return e.Err }

// AuthExchangeError is returned when a redirect credential cannot be turned into a session.
type AuthExchangeError struct {
	// Grant is "tokens" or "code".
	Grant  string
	Reason string
	Err    error
}

func (e *AuthExchangeError) Error() string { return e.Reason }
func (e *AuthExchangeError) Unwrap() error { return e.Err }

// apiError is a non-2xx answer from the auth service.
type apiError struct {
	Status int
	Reason string
}

func (e *apiError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("auth service: %d %s", e.Status, http.StatusText(e.Status))
}

func reasonOf(err error) string {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}

// isRejected reports whether the service answered and refused the credential,
// as opposed to a transport failure.
func isRejected(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500
}
