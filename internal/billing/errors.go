package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound indicates the billing entity does not exist or does
	// not belong to the requesting user.
	ErrEntityNotFound = errors.New("billing: entity not found")
	// ErrMissingOwner indicates the entity has no assigned owner; billing
	// configuration must be completed before invoicing.
	ErrMissingOwner = errors.New("billing: entity has no assigned owner")
	// ErrAllocationConflict indicates concurrent number allocation exhausted
	// its retries.
	ErrAllocationConflict = errors.New("billing: invoice number allocation conflict")
	// ErrNotFound is the generic repository miss.
	ErrNotFound = errors.New("billing: not found")
)

// LockedPeriodError is returned when an ISSUED or PAID invoice already
// covers the requested (owner, period). The period is terminal for the
// resolver; callers get a read-only snapshot of the existing invoice.
type LockedPeriodError struct {
	Invoice *ClientInvoice
}

func (e *LockedPeriodError) Error() string {
	return fmt.Sprintf("billing: period %04d-%02d already invoiced as %s",
		e.Invoice.PeriodYear, e.Invoice.PeriodMonth, derefStr(e.Invoice.FullNumber))
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
