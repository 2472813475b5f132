package client

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int        `json:"-"`
	Message    string     `json:"error"`
	Reason     string     `json:"reason"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Reason, e.Message)
}

// ReasonOf returns the reason of an *APIError in err's chain, or "".
func ReasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}
