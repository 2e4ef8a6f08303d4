package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Statement is the raw billing source data for one entity and period.
type Statement struct {
	Reservations []Reservation
	Expenses     []PropertyExpense
}

// Aggregator collects reservations and chargeable expenses for a billing
// window. Read-only and idempotent: regeneration calls it repeatedly and
// simply reflects whatever source state exists at that moment.
type Aggregator struct {
	reservations ReservationRepository
	expenses     ExpenseRepository
}

// NewAggregator builds an Aggregator.
func NewAggregator(reservations ReservationRepository, expenses ExpenseRepository) *Aggregator {
	return &Aggregator{reservations: reservations, expenses: expenses}
}

// Collect returns the statement for (entity, period). Reservations are
// selected by check-in inside the month, expenses by date inside the month
// and chargeToOwner=true; both come back in chronological order.
func (a *Aggregator) Collect(ctx context.Context, userID uuid.UUID, kind EntityKind, entityID uuid.UUID, p Period) (Statement, error) {
	reservations, err := a.reservations.ListBillable(ctx, userID, kind, entityID, p.Start(), p.NextStart())
	if err != nil {
		return Statement{}, fmt.Errorf("billing: list reservations: %w", err)
	}
	expenses, err := a.expenses.ListChargeable(ctx, kind, entityID, p.Start(), p.End())
	if err != nil {
		return Statement{}, fmt.Errorf("billing: list expenses: %w", err)
	}
	return Statement{Reservations: reservations, Expenses: expenses}, nil
}
