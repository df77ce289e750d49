package transcribe

import (
	"errors"
	"fmt"

	"github.com/nikhilbhutani/sttgateway/internal/quota"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
)

// QuotaExceededError is returned before any provider is called when the
// caller's monthly quota cannot cover the request.
type QuotaExceededError struct {
	Status quota.Status
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.Status.Reason)
}
