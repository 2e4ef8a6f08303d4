package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestComputeItemsDetailedCompanyOwner(t *testing.T) {
	resID := uuid.New()
	stmt := Statement{
		Reservations: []Reservation{{
			ID:           resID,
			GuestName:    "Alice Smith",
			CheckIn:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			CheckOut:     time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
			HostEarnings: 300,
			CleaningFee:  60,
			Status:       ReservationStatusConfirmed,
		}},
	}
	cfg := BillingConfig{
		CommissionPct:       20,
		CommissionVAT:       21,
		CleaningFee:         60,
		CleaningVATIncluded: true,
	}

	items, totals := ComputeItems(stmt, cfg, DetailLevelDetailed, 15, Period{Year: 2026, Month: 3})
	require.Len(t, items, 2)

	commission := items[0]
	require.Equal(t, "Alice Smith · 10-13 mar", commission.Concept)
	require.Equal(t, 1.0, commission.Quantity)
	require.Equal(t, 48.0, commission.UnitPrice)
	require.Equal(t, 21.0, commission.VATRate)
	require.Equal(t, 15.0, commission.RetentionRate)
	require.Equal(t, 58.08, commission.Total)
	require.NotNil(t, commission.ReservationID)
	require.Equal(t, resID, *commission.ReservationID)
	require.Equal(t, 0, commission.Order)

	cleaning := items[1]
	require.Equal(t, "Limpieza", cleaning.Concept)
	require.Equal(t, 1.0, cleaning.Quantity)
	require.Equal(t, 49.59, cleaning.UnitPrice) // 60 gross with 21% extracted
	require.Equal(t, 21.0, cleaning.VATRate)
	require.Equal(t, 15.0, cleaning.RetentionRate)
	require.Equal(t, 52.56, cleaning.Total)
	require.Nil(t, cleaning.ReservationID)
	require.Equal(t, 1, cleaning.Order)

	require.Equal(t, 97.59, totals.Subtotal)
	require.Equal(t, 20.49, totals.TotalVAT)
	require.Equal(t, 15.0, totals.RetentionRate)
	require.Equal(t, 14.64, totals.RetentionAmount)
	require.Equal(t, 103.44, totals.Total)
}

func TestComputeItemsSummaryAggregatesBeforeRounding(t *testing.T) {
	stmt := Statement{
		Reservations: []Reservation{
			{ID: uuid.New(), GuestName: "A", HostEarnings: 200, CleaningFee: 50,
				CheckIn:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				CheckOut: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), GuestName: "B", HostEarnings: 350.55, CleaningFee: 50,
				CheckIn:  time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
				CheckOut: time.Date(2026, 3, 24, 0, 0, 0, 0, time.UTC)},
		},
	}
	cfg := BillingConfig{
		CommissionPct:       15,
		CommissionVAT:       21,
		CleaningFee:         50,
		CleaningVATIncluded: false,
	}

	items, totals := ComputeItems(stmt, cfg, DetailLevelSummary, 0, Period{Year: 2026, Month: 3})
	require.Len(t, items, 2)

	// 150*0.15 + 300.55*0.15 = 67.5825, rounded once after summing.
	commission := items[0]
	require.Equal(t, "Gestión apartamento turístico - Marzo 2026", commission.Concept)
	require.Equal(t, 1.0, commission.Quantity)
	require.Equal(t, 67.58, commission.UnitPrice)
	require.Equal(t, 81.77, commission.Total)
	require.Nil(t, commission.ReservationID)

	cleaning := items[1]
	require.Equal(t, "Limpieza", cleaning.Concept)
	require.Equal(t, 2.0, cleaning.Quantity)
	require.Equal(t, 50.0, cleaning.UnitPrice)
	require.Equal(t, 121.0, cleaning.Total)

	require.Equal(t, 167.58, totals.Subtotal)
	require.Equal(t, 35.19, totals.TotalVAT)
	require.Equal(t, 0.0, totals.RetentionAmount)
	require.Equal(t, 202.77, totals.Total)
}

func TestComputeItemsSummaryCustomConcept(t *testing.T) {
	stmt := Statement{
		Reservations: []Reservation{
			{ID: uuid.New(), GuestName: "A", HostEarnings: 100, CleaningFee: 0,
				CheckIn:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
				CheckOut: time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)},
		},
	}
	cfg := BillingConfig{CommissionPct: 10, CommissionVAT: 21, SingleConceptText: "Gestión integral"}

	items, _ := ComputeItems(stmt, cfg, DetailLevelSummary, 0, Period{Year: 2026, Month: 7})
	require.Len(t, items, 1) // no cleaning fee configured
	require.Equal(t, "Gestión integral - Julio 2026", items[0].Concept)
	require.Equal(t, 10.0, items[0].UnitPrice)
}

func TestComputeItemsExpensesPassThrough(t *testing.T) {
	stmt := Statement{
		Expenses: []PropertyExpense{
			{
				ID: uuid.New(), Concept: "Reparación",
				Amount: 100, VATAmount: 21,
				SupplierName:  strPtr("Fontanería López"),
				InvoiceNumber: strPtr("A-33"),
			},
			{
				ID: uuid.New(), Concept: "Agua",
				Amount: 80, VATAmount: 8.3, // ratio 10.375 -> reduced band
			},
		},
	}

	items, totals := ComputeItems(stmt, BillingConfig{}, DetailLevelDetailed, 15, Period{Year: 2026, Month: 3})
	require.Len(t, items, 2)

	repair := items[0]
	require.Equal(t, "Reparación (Fontanería López)", repair.Concept)
	require.NotNil(t, repair.Description)
	require.Equal(t, "Factura: A-33", *repair.Description)
	require.Equal(t, 100.0, repair.UnitPrice)
	require.Equal(t, 21.0, repair.VATRate)
	// Reimbursements never carry retention even for company owners.
	require.Equal(t, 0.0, repair.RetentionRate)
	require.Equal(t, 121.0, repair.Total)
	require.Equal(t, 0, repair.Order)

	water := items[1]
	require.Equal(t, "Agua", water.Concept)
	require.Nil(t, water.Description)
	// VAT recomputed from the inferred band, not the raw vatAmount.
	require.Equal(t, 10.0, water.VATRate)
	require.Equal(t, 88.0, water.Total)
	require.Equal(t, 1, water.Order)

	require.Equal(t, 180.0, totals.Subtotal)
	require.Equal(t, 29.0, totals.TotalVAT)
	require.Equal(t, 0.0, totals.RetentionAmount)
	require.Equal(t, 209.0, totals.Total)
}

func TestComputeItemsEmptyStatement(t *testing.T) {
	items, totals := ComputeItems(Statement{}, BillingConfig{CommissionPct: 20, CleaningFee: 60}, DetailLevelDetailed, 15, Period{Year: 2026, Month: 3})
	require.Empty(t, items)
	require.Equal(t, 0.0, totals.Subtotal)
	require.Equal(t, 0.0, totals.TotalVAT)
	require.Equal(t, 0.0, totals.RetentionAmount)
	require.Equal(t, 0.0, totals.Total)
}

func TestComputeItemsSumInvariant(t *testing.T) {
	stmt := Statement{
		Reservations: []Reservation{
			{ID: uuid.New(), GuestName: "A", HostEarnings: 123.45, CleaningFee: 33.33,
				CheckIn:  time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
				CheckOut: time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), GuestName: "B", HostEarnings: 987.65, CleaningFee: 33.33,
				CheckIn:  time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
				CheckOut: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)},
		},
		Expenses: []PropertyExpense{
			{ID: uuid.New(), Concept: "Luz", Amount: 45.67, VATAmount: 9.59},
		},
	}
	cfg := BillingConfig{CommissionPct: 17.5, CommissionVAT: 21, CleaningFee: 33.33, CleaningVATIncluded: true}

	items, totals := ComputeItems(stmt, cfg, DetailLevelDetailed, 15, Period{Year: 2026, Month: 5})

	var sum float64
	for _, it := range items {
		sum += Round2(it.UnitPrice * it.Quantity)
	}
	require.Equal(t, totals.Subtotal, Round2(sum))
	require.Equal(t, totals.Total, Round2(totals.Subtotal+totals.TotalVAT-totals.RetentionAmount))
}
