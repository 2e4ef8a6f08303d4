package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Totals are the invoice-level reductions. They are always computed from
// the exact item rows that get persisted, never recomputed independently,
// so sum(items) == subtotal holds after rounding.
type Totals struct {
	Subtotal        float64
	TotalVAT        float64
	RetentionRate   float64
	RetentionAmount float64
	Total           float64
}

const cleaningConcept = "Limpieza"

// ComputeItems turns a statement into the ordered invoice line items plus
// totals, applying the entity's commission configuration, the detail-level
// policy and the owner-derived retention rate.
func ComputeItems(stmt Statement, cfg BillingConfig, detail DetailLevel, retentionRate float64, p Period) ([]ClientInvoiceItem, Totals) {
	var items []ClientInvoiceItem

	commissionPct := cfg.CommissionPct / 100

	if detail == DetailLevelSummary {
		// One aggregated commission line; per-reservation bases are summed
		// before rounding.
		totalCommission := decimal.Zero
		for _, r := range stmt.Reservations {
			base := decimal.NewFromFloat(r.HostEarnings).Sub(decimal.NewFromFloat(r.CleaningFee))
			totalCommission = totalCommission.Add(base.Mul(decimal.NewFromFloat(commissionPct)))
		}
		if totalCommission.IsPositive() {
			concept := cfg.SingleConceptText
			if concept == "" {
				concept = DefaultSingleConceptText
			}
			unitPrice, _ := totalCommission.Round(2).Float64()
			items = append(items, ClientInvoiceItem{
				Concept:       fmt.Sprintf("%s - %s %d", concept, p.MonthName(), p.Year),
				Quantity:      1,
				UnitPrice:     unitPrice,
				VATRate:       cfg.CommissionVAT,
				RetentionRate: retentionRate,
				Total:         WithVAT(unitPrice, cfg.CommissionVAT),
				Order:         0,
			})
		}
		if line, ok := cleaningLine(stmt, cfg, retentionRate, 1); ok {
			items = append(items, line)
		}
	} else {
		// One commission line per reservation, in check-in order.
		for i, r := range stmt.Reservations {
			r := r
			base := r.HostEarnings - r.CleaningFee
			commission := Round2(base * commissionPct)
			items = append(items, ClientInvoiceItem{
				Concept:       fmt.Sprintf("%s · %s", r.GuestName, FormatStayRange(r.CheckIn, r.CheckOut)),
				Quantity:      1,
				UnitPrice:     commission,
				VATRate:       cfg.CommissionVAT,
				RetentionRate: retentionRate,
				Total:         WithVAT(commission, cfg.CommissionVAT),
				ReservationID: &r.ID,
				Order:         i,
			})
		}
		if line, ok := cleaningLine(stmt, cfg, retentionRate, len(items)); ok {
			items = append(items, line)
		}
	}

	// Expenses are pass-through reimbursements: VAT rate is inferred and
	// recomputed from the standard band, retention never applies.
	for _, e := range stmt.Expenses {
		vatRate := InferVATRate(e.Amount, e.VATAmount)
		standardVAT := ApplyRate(e.Amount, vatRate)
		concept := e.Concept
		if e.SupplierName != nil && *e.SupplierName != "" {
			concept = fmt.Sprintf("%s (%s)", e.Concept, *e.SupplierName)
		}
		var description *string
		if e.InvoiceNumber != nil && *e.InvoiceNumber != "" {
			d := fmt.Sprintf("Factura: %s", *e.InvoiceNumber)
			description = &d
		}
		items = append(items, ClientInvoiceItem{
			Concept:       concept,
			Description:   description,
			Quantity:      1,
			UnitPrice:     Round2(e.Amount),
			VATRate:       vatRate,
			RetentionRate: 0,
			Total:         Round2(e.Amount + standardVAT),
			Order:         len(items),
		})
	}

	return items, totalsFromItems(items, retentionRate)
}

// cleaningLine emits the single grouped cleaning line: quantity is the
// reservation count, unit price is the net base of the configured fee
// (extracted when the fee is stored VAT-inclusive), VAT fixed at 21% and
// retention applied on the net base.
func cleaningLine(stmt Statement, cfg BillingConfig, retentionRate float64, order int) (ClientInvoiceItem, bool) {
	if len(stmt.Reservations) == 0 || cfg.CleaningFee <= 0 {
		return ClientInvoiceItem{}, false
	}
	unitBase := Round2(cfg.CleaningFee)
	if cfg.CleaningVATIncluded {
		unitBase = ExtractVATBase(cfg.CleaningFee, vatRateStandard)
	}
	qty := len(stmt.Reservations)
	totalBase := Round2(unitBase * float64(qty))
	totalWithVAT := WithVAT(totalBase, vatRateStandard)
	retention := ApplyRate(totalBase, retentionRate)
	return ClientInvoiceItem{
		Concept:       cleaningConcept,
		Quantity:      float64(qty),
		UnitPrice:     unitBase,
		VATRate:       vatRateStandard,
		RetentionRate: retentionRate,
		Total:         Round2(totalWithVAT - retention),
		Order:         order,
	}, true
}

func totalsFromItems(items []ClientInvoiceItem, retentionRate float64) Totals {
	subtotal := decimal.Zero
	totalVAT := decimal.Zero
	totalRetention := decimal.Zero
	for _, it := range items {
		base := decimal.NewFromFloat(Round2(it.UnitPrice * it.Quantity))
		subtotal = subtotal.Add(base)
		totalVAT = totalVAT.Add(decimal.NewFromFloat(ApplyRate(it.UnitPrice*it.Quantity, it.VATRate)))
		totalRetention = totalRetention.Add(decimal.NewFromFloat(ApplyRate(it.UnitPrice*it.Quantity, it.RetentionRate)))
	}
	sub, _ := subtotal.Round(2).Float64()
	vat, _ := totalVAT.Round(2).Float64()
	ret, _ := totalRetention.Round(2).Float64()
	return Totals{
		Subtotal:        sub,
		TotalVAT:        vat,
		RetentionRate:   retentionRate,
		RetentionAmount: ret,
		Total:           Round2(sub + vat - ret),
	}
}
