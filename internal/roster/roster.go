// Package roster resolves staff groups against the external data service.
//
// The base HTTP client is composed with optional decorators: a circuit
// breaker that fails fast during data service outages, and a read-through
// TTL cache for groups that are scheduled repeatedly. All decorators
// implement Client, so callers never know which combination they hold.
package roster

import (
	"context"
	"errors"
	"fmt"
)

// Client resolves a staff group to its ordered roster of staff ids. The
// order is assigned by the data service and is load-bearing: the schedule
// engine assigns shifts in roster order.
type Client interface {
	Resolve(ctx context.Context, groupID string) ([]string, error)
	Healthy(ctx context.Context) error
}

// UnavailableError reports a roster that could not be resolved. Every
// resolution failure is wrapped in this type so the dispatcher can fail the
// job with a stable reason regardless of the underlying cause.
type UnavailableError struct {
	GroupID string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("roster unavailable for group %s: %v", e.GroupID, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}
