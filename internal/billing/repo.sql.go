package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentabill/rentabill/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the billing
// engine. It implements EntityRepository, ReservationRepository,
// ExpenseRepository, UserRepository, SeriesRepository and
// InvoiceRepository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- entities ---

type propertyEntity struct {
	id    uuid.UUID
	kind  EntityKind
	name  string
	city  string
	owner *Owner
	cfg   BillingConfig
}

func (e *propertyEntity) EntityID() uuid.UUID  { return e.id }
func (e *propertyEntity) Kind() EntityKind     { return e.kind }
func (e *propertyEntity) EntityName() string   { return e.name }
func (e *propertyEntity) EntityCity() string   { return e.city }
func (e *propertyEntity) OwnerRef() *Owner     { return e.owner }
func (e *propertyEntity) Config() BillingConfig { return e.cfg }

const entityColumns = `e.id, e.name, e.city,
       cfg.commission_pct, cfg.commission_vat, cfg.cleaning_fee, cfg.cleaning_vat_included,
       cfg.detail_level, cfg.single_concept_text,
       o.id, o.type, o.first_name, o.last_name, o.company_name, o.email,
       o.nif, o.cif, o.address, o.city, o.postal_code, o.country, o.phone`

// FindEntity loads a property or billing unit with its billing config and
// owner. Legacy properties keep their config in billing_configs; billing
// units carry the same columns inline, so both shapes are projected
// through one column list.
func (r *Repository) FindEntity(ctx context.Context, userID uuid.UUID, kind EntityKind, id uuid.UUID) (BillingEntity, error) {
	var query string
	switch kind {
	case EntityKindBillingUnit:
		query = `SELECT ` + entityColumns + `
FROM billing_units e
JOIN LATERAL (SELECT e.commission_pct, e.commission_vat, e.cleaning_fee,
                     e.cleaning_vat_included, e.detail_level, e.single_concept_text) cfg ON true
LEFT JOIN owners o ON o.id = e.owner_id
WHERE e.id = $1 AND e.user_id = $2`
	default:
		query = `SELECT ` + entityColumns + `
FROM properties e
LEFT JOIN billing_configs cfg ON cfg.property_id = e.id
LEFT JOIN owners o ON o.id = cfg.owner_id
WHERE e.id = $1 AND e.host_id = $2`
	}

	ent := &propertyEntity{id: id, kind: kind}
	var city pgtype.Text
	var commissionPct, commissionVAT, cleaningFee pgtype.Float8
	var cleaningVATIncluded pgtype.Bool
	var detailLevel, conceptText pgtype.Text
	var ownerID pgtype.UUID
	var ownerType pgtype.Text
	var firstName, lastName, companyName, email, nif, cif, address, ownerCity, postalCode, country, phone pgtype.Text

	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&ent.id, &ent.name, &city,
		&commissionPct, &commissionVAT, &cleaningFee, &cleaningVATIncluded,
		&detailLevel, &conceptText,
		&ownerID, &ownerType, &firstName, &lastName, &companyName, &email,
		&nif, &cif, &address, &ownerCity, &postalCode, &country, &phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("billing: find entity: %w", err)
	}

	ent.city = city.String
	ent.cfg = BillingConfig{
		CommissionPct:       commissionPct.Float64,
		CommissionVAT:       commissionVAT.Float64,
		CleaningFee:         cleaningFee.Float64,
		CleaningVATIncluded: !cleaningVATIncluded.Valid || cleaningVATIncluded.Bool,
		DetailLevel:         DetailLevel(detailLevel.String),
		SingleConceptText:   conceptText.String,
	}
	if ent.cfg.CommissionVAT == 0 {
		ent.cfg.CommissionVAT = vatRateStandard
	}
	if ent.cfg.DetailLevel == "" {
		ent.cfg.DetailLevel = DetailLevelDetailed
	}
	if ent.cfg.SingleConceptText == "" {
		ent.cfg.SingleConceptText = DefaultSingleConceptText
	}
	if ownerID.Valid {
		ent.owner = &Owner{
			ID:          uuid.UUID(ownerID.Bytes),
			Type:        OwnerType(ownerType.String),
			FirstName:   textPtr(firstName),
			LastName:    textPtr(lastName),
			CompanyName: textPtr(companyName),
			Email:       textPtr(email),
			NIF:         textPtr(nif),
			CIF:         textPtr(cif),
			Address:     textPtr(address),
			City:        textPtr(ownerCity),
			PostalCode:  textPtr(postalCode),
			Country:     textPtr(country),
			Phone:       textPtr(phone),
		}
	}
	return ent, nil
}

// --- reservations ---

// ListBillable returns CONFIRMED/COMPLETED reservations checking in inside
// [from, to), in check-in order.
func (r *Repository) ListBillable(ctx context.Context, userID uuid.UUID, kind EntityKind, entityID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	var query string
	switch kind {
	case EntityKindBillingUnit:
		query = `SELECT res.id, res.guest_name, res.check_in, res.check_out, res.host_earnings, res.cleaning_fee, res.status
FROM reservations res
WHERE res.user_id = $1 AND res.billing_unit_id = $2
  AND res.check_in >= $3 AND res.check_in < $4
  AND res.status IN ('CONFIRMED','COMPLETED')
ORDER BY res.check_in`
	default:
		query = `SELECT res.id, res.guest_name, res.check_in, res.check_out, res.host_earnings, res.cleaning_fee, res.status
FROM reservations res
JOIN billing_configs cfg ON cfg.id = res.billing_config_id
WHERE res.user_id = $1 AND cfg.property_id = $2
  AND res.check_in >= $3 AND res.check_in < $4
  AND res.status IN ('CONFIRMED','COMPLETED')
ORDER BY res.check_in`
	}

	rows, err := r.pool.Query(ctx, query, userID, entityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.GuestName, &res.CheckIn, &res.CheckOut, &res.HostEarnings, &res.CleaningFee, &res.Status); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// --- expenses ---

// ListChargeable returns owner-chargeable expenses dated inside [from, to],
// in date order.
func (r *Repository) ListChargeable(ctx context.Context, kind EntityKind, entityID uuid.UUID, from, to time.Time) ([]PropertyExpense, error) {
	var query string
	switch kind {
	case EntityKindBillingUnit:
		query = `SELECT ex.id, ex.date, ex.concept, ex.amount, ex.vat_amount, ex.charge_to_owner, ex.supplier_name, ex.invoice_number
FROM property_expenses ex
WHERE ex.billing_unit_id = $1 AND ex.charge_to_owner AND ex.date >= $2 AND ex.date <= $3
ORDER BY ex.date`
	default:
		query = `SELECT ex.id, ex.date, ex.concept, ex.amount, ex.vat_amount, ex.charge_to_owner, ex.supplier_name, ex.invoice_number
FROM property_expenses ex
JOIN billing_configs cfg ON cfg.id = ex.billing_config_id
WHERE cfg.property_id = $1 AND ex.charge_to_owner AND ex.date >= $2 AND ex.date <= $3
ORDER BY ex.date`
	}

	rows, err := r.pool.Query(ctx, query, entityID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PropertyExpense
	for rows.Next() {
		var ex PropertyExpense
		var supplier, invoiceNumber pgtype.Text
		if err := rows.Scan(&ex.ID, &ex.Date, &ex.Concept, &ex.Amount, &ex.VATAmount, &ex.ChargeToOwner, &supplier, &invoiceNumber); err != nil {
			return nil, err
		}
		ex.SupplierName = textPtr(supplier)
		ex.InvoiceNumber = textPtr(invoiceNumber)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// --- users ---

// GetIdentity returns the user's display name and email.
func (r *Repository) GetIdentity(ctx context.Context, userID uuid.UUID) (string, string, error) {
	var name, email pgtype.Text
	err := r.pool.QueryRow(ctx, `SELECT name, email FROM users WHERE id = $1`, userID).Scan(&name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}
	return name.String, email.String, nil
}

// --- series ---

const configColumns = `id, user_id, business_name, nif, address, city, postal_code, country, email, phone,
       logo_url, payment_methods, default_payment_method, iban, bank_name, bic, bizum_phone, paypal_email`

func scanConfig(row pgx.Row) (*UserInvoiceConfig, error) {
	var cfg UserInvoiceConfig
	var logoURL, defaultMethod, iban, bankName, bic, bizum, paypal pgtype.Text
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.BusinessName, &cfg.NIF, &cfg.Address, &cfg.City,
		&cfg.PostalCode, &cfg.Country, &cfg.Email, &cfg.Phone,
		&logoURL, &cfg.PaymentMethods, &defaultMethod, &iban, &bankName, &bic, &bizum, &paypal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cfg.LogoURL = textPtr(logoURL)
	cfg.DefaultPaymentMethod = textPtr(defaultMethod)
	cfg.IBAN = textPtr(iban)
	cfg.BankName = textPtr(bankName)
	cfg.BIC = textPtr(bic)
	cfg.BizumPhone = textPtr(bizum)
	cfg.PayPalEmail = textPtr(paypal)
	return &cfg, nil
}

// GetConfig returns the user's invoice config.
func (r *Repository) GetConfig(ctx context.Context, userID uuid.UUID) (*UserInvoiceConfig, error) {
	return scanConfig(r.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM user_invoice_configs WHERE user_id = $1`, userID))
}

// CreateConfig inserts a provisional invoice config.
func (r *Repository) CreateConfig(ctx context.Context, cfg UserInvoiceConfig) (*UserInvoiceConfig, error) {
	cfg.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `INSERT INTO user_invoice_configs
(id, user_id, business_name, nif, address, city, postal_code, country, email, phone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cfg.ID, cfg.UserID, cfg.BusinessName, cfg.NIF, cfg.Address, cfg.City,
		cfg.PostalCode, cfg.Country, cfg.Email, cfg.Phone)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

const seriesColumns = `id, config_id, name, prefix, year, type, current_number, reset_yearly, last_reset_year, is_default, is_active`

func scanSeries(row pgx.Row) (*InvoiceSeries, error) {
	var s InvoiceSeries
	err := row.Scan(&s.ID, &s.ConfigID, &s.Name, &s.Prefix, &s.Year, &s.Type,
		&s.CurrentNumber, &s.ResetYearly, &s.LastResetYear, &s.IsDefault, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindActiveSeries returns the active STANDARD series for the year,
// preferring the default one.
func (r *Repository) FindActiveSeries(ctx context.Context, configID uuid.UUID, year int) (*InvoiceSeries, error) {
	return scanSeries(r.pool.QueryRow(ctx, `SELECT `+seriesColumns+`
FROM invoice_series
WHERE config_id = $1 AND year = $2 AND type = $3 AND is_active
ORDER BY is_default DESC
LIMIT 1`, configID, year, SeriesTypeStandard))
}

// FindSeries looks up a series regardless of active state.
func (r *Repository) FindSeries(ctx context.Context, configID uuid.UUID, prefix string, year int) (*InvoiceSeries, error) {
	return scanSeries(r.pool.QueryRow(ctx, `SELECT `+seriesColumns+`
FROM invoice_series
WHERE config_id = $1 AND prefix = $2 AND year = $3
LIMIT 1`, configID, prefix, year))
}

// CreateSeries inserts a numbering series.
func (r *Repository) CreateSeries(ctx context.Context, s InvoiceSeries) (*InvoiceSeries, error) {
	s.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `INSERT INTO invoice_series
(id, config_id, name, prefix, year, type, current_number, reset_yearly, last_reset_year, is_default, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.ConfigID, s.Name, s.Prefix, s.Year, s.Type,
		s.CurrentNumber, s.ResetYearly, s.LastResetYear, s.IsDefault, s.IsActive)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActivateSeries marks a series active again. Series are never deleted.
func (r *Repository) ActivateSeries(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE invoice_series SET is_active = true WHERE id = $1`, id)
	return err
}

// GetSeries returns one series by id.
func (r *Repository) GetSeries(ctx context.Context, id uuid.UUID) (*InvoiceSeries, error) {
	return scanSeries(r.pool.QueryRow(ctx, `SELECT `+seriesColumns+` FROM invoice_series WHERE id = $1`, id))
}

// --- invoices ---

const invoiceColumns = `id, user_id, owner_id, series_id, entity_id, entity_kind, number, full_number,
       period_year, period_month, issue_date, subtotal, total_vat, retention_rate, retention_amount,
       total, status, is_locked, notes, created_at, updated_at`

func scanInvoice(row pgx.Row) (*ClientInvoice, error) {
	var inv ClientInvoice
	var number pgtype.Int4
	var fullNumber, notes pgtype.Text
	err := row.Scan(&inv.ID, &inv.UserID, &inv.OwnerID, &inv.SeriesID, &inv.EntityID, &inv.EntityKind,
		&number, &fullNumber, &inv.PeriodYear, &inv.PeriodMonth, &inv.IssueDate,
		&inv.Subtotal, &inv.TotalVAT, &inv.RetentionRate, &inv.RetentionAmount,
		&inv.Total, &inv.Status, &inv.IsLocked, &notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if number.Valid {
		n := int(number.Int32)
		inv.Number = &n
	}
	inv.FullNumber = textPtr(fullNumber)
	inv.Notes = textPtr(notes)
	return &inv, nil
}

func (r *Repository) loadItems(ctx context.Context, invoiceID uuid.UUID) ([]ClientInvoiceItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, concept, description, quantity, unit_price,
       vat_rate, retention_rate, total, reservation_id, item_order
FROM client_invoice_items WHERE invoice_id = $1 ORDER BY item_order`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ClientInvoiceItem
	for rows.Next() {
		var it ClientInvoiceItem
		var description pgtype.Text
		var reservationID pgtype.UUID
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Concept, &description, &it.Quantity,
			&it.UnitPrice, &it.VATRate, &it.RetentionRate, &it.Total, &reservationID, &it.Order); err != nil {
			return nil, err
		}
		it.Description = textPtr(description)
		if reservationID.Valid {
			rid := uuid.UUID(reservationID.Bytes)
			it.ReservationID = &rid
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// FindDraft returns the unique DRAFT invoice for (user, entity, period)
// with items loaded.
func (r *Repository) FindDraft(ctx context.Context, userID uuid.UUID, kind EntityKind, entityID uuid.UUID, p Period) (*ClientInvoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM client_invoices
WHERE user_id = $1 AND entity_kind = $2 AND entity_id = $3
  AND period_year = $4 AND period_month = $5 AND status = 'DRAFT'`,
		userID, kind, entityID, p.Year, p.Month))
	if err != nil {
		return nil, err
	}
	inv.Items, err = r.loadItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// FindIssuedForPeriod returns an ISSUED or PAID invoice covering the
// (owner, period), if one exists.
func (r *Repository) FindIssuedForPeriod(ctx context.Context, userID, ownerID uuid.UUID, p Period) (*ClientInvoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM client_invoices
WHERE user_id = $1 AND owner_id = $2 AND period_year = $3 AND period_month = $4
  AND status IN ('ISSUED','PAID')
LIMIT 1`, userID, ownerID, p.Year, p.Month))
}

// Get returns one invoice with items.
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*ClientInvoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM client_invoices WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}
	inv.Items, err = r.loadItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// WithTx wraps fn in a repeatable-read transaction and translates
// constraint and serialization failures into domain errors.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, InvoiceTx) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &invoiceTx{tx: tx})
	})
	return translatePgErr(err)
}

type invoiceTx struct {
	tx pgx.Tx
}

// AllocateNumber performs the atomic read-increment-write on the series
// row. The UPDATE takes a row lock, so concurrent allocations are strictly
// ordered; a rollback of the surrounding transaction releases the number.
func (t *invoiceTx) AllocateNumber(ctx context.Context, seriesID uuid.UUID) (int, error) {
	var number int
	err := t.tx.QueryRow(ctx, `UPDATE invoice_series
SET current_number = current_number + 1
WHERE id = $1 AND is_active
RETURNING current_number`, seriesID).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return number, nil
}

func (t *invoiceTx) CreateInvoice(ctx context.Context, inv *ClientInvoice) error {
	inv.ID = uuid.New()
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	_, err := t.tx.Exec(ctx, `INSERT INTO client_invoices
(id, user_id, owner_id, series_id, entity_id, entity_kind, number, full_number,
 period_year, period_month, issue_date, subtotal, total_vat, retention_rate,
 retention_amount, total, status, is_locked, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		inv.ID, inv.UserID, inv.OwnerID, inv.SeriesID, inv.EntityID, inv.EntityKind,
		inv.Number, inv.FullNumber, inv.PeriodYear, inv.PeriodMonth, inv.IssueDate,
		inv.Subtotal, inv.TotalVAT, inv.RetentionRate, inv.RetentionAmount,
		inv.Total, inv.Status, inv.IsLocked, inv.CreatedAt, inv.UpdatedAt)
	return translatePgErr(err)
}

func (t *invoiceTx) InsertItem(ctx context.Context, item *ClientInvoiceItem) error {
	item.ID = uuid.New()
	_, err := t.tx.Exec(ctx, `INSERT INTO client_invoice_items
(id, invoice_id, concept, description, quantity, unit_price, vat_rate, retention_rate, total, reservation_id, item_order)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		item.ID, item.InvoiceID, item.Concept, item.Description, item.Quantity,
		item.UnitPrice, item.VATRate, item.RetentionRate, item.Total, item.ReservationID, item.Order)
	return err
}

func (t *invoiceTx) DeleteItems(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM client_invoice_items WHERE invoice_id = $1`, invoiceID)
	return err
}

func (t *invoiceTx) UpdateInvoice(ctx context.Context, id, ownerID uuid.UUID, totals Totals) error {
	_, err := t.tx.Exec(ctx, `UPDATE client_invoices
SET owner_id = $2, subtotal = $3, total_vat = $4, retention_rate = $5,
    retention_amount = $6, total = $7, updated_at = NOW()
WHERE id = $1 AND status = 'DRAFT'`,
		id, ownerID, totals.Subtotal, totals.TotalVAT, totals.RetentionRate,
		totals.RetentionAmount, totals.Total)
	return err
}

// translatePgErr maps the unique-draft constraint to ErrDraftExists and
// serialization/deadlock failures to ErrAllocationConflict.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == "client_invoices_draft_unique":
			return ErrDraftExists
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return fmt.Errorf("%w: %v", ErrAllocationConflict, err)
		}
	}
	return err
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
