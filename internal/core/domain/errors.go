package domain

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

var (
	// ErrAuthenticationFailed is raised when the API answers 401.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAuthorizationFailed is raised when the API answers 403.
	ErrAuthorizationFailed = errors.New("authorization failed")
	// ErrMalformedCredential marks a persisted identity that does not parse.
	ErrMalformedCredential = errors.New("malformed credential")
	ErrAbsolutePath        = errors.New("api path must be relative")
	ErrNoSession           = errors.New("no active session")
)

// AuthError is returned by the gateway after it has handled a 401 or 403.
type AuthError struct {
	Status int
	Path   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s (status %d)", e.kind(), e.Path, e.Status)
}

func (e *AuthError) Unwrap() error {
	return e.kind()
}

func (e *AuthError) kind() error {
	if e.Status == http.StatusForbidden {
		return ErrAuthorizationFailed
	}
	return ErrAuthenticationFailed
}

// APIError describes a non-2xx answer decoded from a FastAPI {"detail": ...} body.
// The gateway itself never builds one; flows that need the detail do.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Detail)
}

// IsNetworkFailure reports whether err came from the transport rather than
// from an HTTP answer.
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// IsAuthFailure reports whether err is one of the gateway's auth errors.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrAuthorizationFailed)
}
