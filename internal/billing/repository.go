package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntityRepository resolves billing entities regardless of backing kind.
type EntityRepository interface {
	// FindEntity returns the entity with its owner and billing config
	// loaded. Returns ErrEntityNotFound when missing or owned by another
	// user; the entity may still carry a nil owner (checked by the
	// resolver, surfaced as ErrMissingOwner).
	FindEntity(ctx context.Context, userID uuid.UUID, kind EntityKind, id uuid.UUID) (BillingEntity, error)
}

// ReservationRepository is the read-only reservation store boundary.
type ReservationRepository interface {
	// ListBillable returns CONFIRMED/COMPLETED reservations with check-in
	// in [from, to), ordered by check-in ascending.
	ListBillable(ctx context.Context, userID uuid.UUID, kind EntityKind, entityID uuid.UUID, from, to time.Time) ([]Reservation, error)
}

// ExpenseRepository is the read-only expense store boundary.
type ExpenseRepository interface {
	// ListChargeable returns expenses with chargeToOwner=true and date in
	// [from, to], ordered by date ascending.
	ListChargeable(ctx context.Context, kind EntityKind, entityID uuid.UUID, from, to time.Time) ([]PropertyExpense, error)
}

// UserRepository exposes the minimal identity lookup used to seed a
// provisional invoice config.
type UserRepository interface {
	GetIdentity(ctx context.Context, userID uuid.UUID) (name, email string, err error)
}

// SeriesRepository owns invoice configs and numbering series.
type SeriesRepository interface {
	GetConfig(ctx context.Context, userID uuid.UUID) (*UserInvoiceConfig, error)
	CreateConfig(ctx context.Context, cfg UserInvoiceConfig) (*UserInvoiceConfig, error)
	// FindActiveSeries returns the active STANDARD series for the year,
	// preferring the one marked default. ErrNotFound when none is active.
	FindActiveSeries(ctx context.Context, configID uuid.UUID, year int) (*InvoiceSeries, error)
	// FindSeries looks up a series regardless of active state.
	FindSeries(ctx context.Context, configID uuid.UUID, prefix string, year int) (*InvoiceSeries, error)
	CreateSeries(ctx context.Context, s InvoiceSeries) (*InvoiceSeries, error)
	ActivateSeries(ctx context.Context, id uuid.UUID) error
	GetSeries(ctx context.Context, id uuid.UUID) (*InvoiceSeries, error)
}

// InvoiceRepository persists client invoices and their items.
type InvoiceRepository interface {
	// WithTx runs fn inside one database transaction. Both resolver
	// transitions (create and regenerate) go through here so a reader
	// never observes fresh items with stale totals or vice versa.
	WithTx(ctx context.Context, fn func(context.Context, InvoiceTx) error) error
	// FindDraft returns the unique DRAFT invoice for (user, entity,
	// period) with items ordered by their order field. ErrNotFound when
	// absent.
	FindDraft(ctx context.Context, userID uuid.UUID, kind EntityKind, entityID uuid.UUID, p Period) (*ClientInvoice, error)
	// FindIssuedForPeriod returns an ISSUED or PAID invoice for the
	// (owner, period), if any. ErrNotFound when absent.
	FindIssuedForPeriod(ctx context.Context, userID, ownerID uuid.UUID, p Period) (*ClientInvoice, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*ClientInvoice, error)
}

// InvoiceTx is the transaction-scoped slice of the invoice store.
type InvoiceTx interface {
	// AllocateNumber atomically increments the series counter and returns
	// the new number. Runs in the surrounding transaction so a rollback
	// releases the number.
	AllocateNumber(ctx context.Context, seriesID uuid.UUID) (int, error)
	// CreateInvoice inserts the invoice row; fills inv.ID. A unique
	// violation on the draft constraint is surfaced as ErrDraftExists.
	CreateInvoice(ctx context.Context, inv *ClientInvoice) error
	InsertItem(ctx context.Context, item *ClientInvoiceItem) error
	DeleteItems(ctx context.Context, invoiceID uuid.UUID) error
	// UpdateInvoice rewrites the owner reference and computed totals of an
	// existing draft, leaving number and fullNumber untouched.
	UpdateInvoice(ctx context.Context, id, ownerID uuid.UUID, t Totals) error
}

// ErrDraftExists is reported by CreateInvoice when the database-level
// unique-draft constraint fires; the loser of the race retries into the
// regenerate branch.
var ErrDraftExists = errors.New("billing: draft already exists for period")
