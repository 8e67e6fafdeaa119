/*
quota.go - Monthly cap on Personal-purpose requests

PURPOSE:
  Faculty may take at most N (default 2) Personal gate passes per calendar
  month. The month is taken from the requested date's YYYY-MM prefix, not
  from the submission timestamp: a pass requested in May counts against
  May even if submitted in April.

  The cap is enforced at submission time only; transitions never re-check
  it.

SEE ALSO:
  - service.go: invokes Check before creating Personal requests
*/
package gatepass

import (
	"context"
	"fmt"
	"time"
)

// DefaultPersonalQuota is the per-month cap applied when no limit is
// configured.
const DefaultPersonalQuota = 2

// QuotaEnforcer counts existing Personal requests in the target month
// against the configured limit.
type QuotaEnforcer struct {
	Store RequestStore
	Limit int
}

// Check returns a QuotaExceededError if the faculty already holds Limit or
// more Personal requests dated in the same month as date.
func (q *QuotaEnforcer) Check(ctx context.Context, facultyID UserID, date string) error {
	ym, err := YearMonth(date)
	if err != nil {
		return err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPersonalQuota
	}

	count, err := q.Store.CountPersonal(ctx, facultyID, ym)
	if err != nil {
		return fmt.Errorf("%w: counting personal requests: %v", ErrUnavailable, err)
	}
	if count >= limit {
		return &QuotaExceededError{FacultyID: facultyID, YearMonth: ym, Limit: limit, Count: count}
	}
	return nil
}

// YearMonth validates a YYYY-MM-DD date string and returns its YYYY-MM
// prefix.
func YearMonth(date string) (string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD: %q", ErrValidation, date)
	}
	return date[:7], nil
}
