package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// Forbidden wraps ErrForbidden with the name of the denied action so the
// caller can report which command was refused.
func Forbidden(action string) error {
	return fmt.Errorf("%s: %w", action, ErrForbidden)
}

// UpstreamError carries a completion/embedding provider failure together
// with the HTTP status it arrived with. The provider's own message is kept
// verbatim.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
	}
	return "upstream error: " + e.Message
}

func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
