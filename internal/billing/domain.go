package billing

import (
	"time"

	"github.com/google/uuid"
)

// OwnerType classifies the property owner for tax purposes.
type OwnerType string

const (
	OwnerTypePersonaFisica OwnerType = "PERSONA_FISICA"
	OwnerTypeEmpresa       OwnerType = "EMPRESA"
)

// DetailLevel selects how reservation commissions are itemized.
type DetailLevel string

const (
	DetailLevelDetailed DetailLevel = "DETAILED"
	DetailLevelSummary  DetailLevel = "SUMMARY"
)

// InvoiceStatus enumerates client invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
	InvoiceStatusVoid   InvoiceStatus = "VOID"
)

// ReservationStatus enumerates reservation statuses relevant to billing.
type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCompleted ReservationStatus = "COMPLETED"
)

// EntityKind distinguishes the two billing entity backings.
type EntityKind string

const (
	EntityKindProperty    EntityKind = "property"
	EntityKindBillingUnit EntityKind = "billingUnit"
)

// Owner is the invoiced party. Type drives the legal retention rate.
type Owner struct {
	ID          uuid.UUID  `json:"id"`
	Type        OwnerType  `json:"type"`
	FirstName   *string    `json:"firstName,omitempty"`
	LastName    *string    `json:"lastName,omitempty"`
	CompanyName *string    `json:"companyName,omitempty"`
	Email       *string    `json:"email,omitempty"`
	NIF         *string    `json:"nif,omitempty"`
	CIF         *string    `json:"cif,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	PostalCode  *string    `json:"postalCode,omitempty"`
	Country     *string    `json:"country,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
}

// BillingConfig is the per-entity commission and cleaning configuration.
type BillingConfig struct {
	CommissionPct       float64     `json:"commissionPct"`
	CommissionVAT       float64     `json:"commissionVat"`
	CleaningFee         float64     `json:"cleaningFee"`
	CleaningVATIncluded bool        `json:"cleaningVatIncluded"`
	DetailLevel         DetailLevel `json:"detailLevel"`
	SingleConceptText   string      `json:"singleConceptText"`
}

// DefaultSingleConceptText is used when an entity has no configured summary concept.
const DefaultSingleConceptText = "Gestión apartamento turístico"

// BillingEntity abstracts the invoiced unit regardless of its backing kind.
// The resolver and the line item computer never branch on the kind.
type BillingEntity interface {
	EntityID() uuid.UUID
	Kind() EntityKind
	EntityName() string
	EntityCity() string
	OwnerRef() *Owner
	Config() BillingConfig
}

// Reservation is a read-only view of a guest stay. Mutated elsewhere.
type Reservation struct {
	ID           uuid.UUID
	GuestName    string
	CheckIn      time.Time
	CheckOut     time.Time
	HostEarnings float64
	CleaningFee  float64
	Status       ReservationStatus
}

// PropertyExpense is a read-only chargeable expense record.
type PropertyExpense struct {
	ID            uuid.UUID
	Date          time.Time
	Concept       string
	Amount        float64
	VATAmount     float64
	ChargeToOwner bool
	SupplierName  *string
	InvoiceNumber *string
}

// InvoiceSeries is a yearly, prefixed numbering sequence owned by a user.
// CurrentNumber is the last allocated number; it only ever increases while
// the series is active for its year.
type InvoiceSeries struct {
	ID            uuid.UUID `json:"id"`
	ConfigID      uuid.UUID `json:"-"`
	Name          string    `json:"name"`
	Prefix        string    `json:"prefix"`
	Year          int       `json:"year"`
	Type          string    `json:"type"`
	CurrentNumber int       `json:"currentNumber"`
	ResetYearly   bool      `json:"resetYearly"`
	LastResetYear int       `json:"lastResetYear"`
	IsDefault     bool      `json:"isDefault"`
	IsActive      bool      `json:"isActive"`
}

// SeriesTypeStandard is the default series type for regular invoices.
const SeriesTypeStandard = "STANDARD"

// UserInvoiceConfig holds the issuer's business identity and payment methods.
type UserInvoiceConfig struct {
	ID                   uuid.UUID `json:"-"`
	UserID               uuid.UUID `json:"-"`
	BusinessName         string    `json:"businessName"`
	NIF                  string    `json:"nif"`
	Address              string    `json:"address"`
	City                 string    `json:"city"`
	PostalCode           string    `json:"postalCode"`
	Country              string    `json:"country"`
	Email                string    `json:"email"`
	Phone                string    `json:"phone"`
	LogoURL              *string   `json:"logoUrl,omitempty"`
	PaymentMethods       []string  `json:"paymentMethods,omitempty"`
	DefaultPaymentMethod *string   `json:"defaultPaymentMethod,omitempty"`
	IBAN                 *string   `json:"iban,omitempty"`
	BankName             *string   `json:"bankName,omitempty"`
	BIC                  *string   `json:"bic,omitempty"`
	BizumPhone           *string   `json:"bizumPhone,omitempty"`
	PayPalEmail          *string   `json:"paypalEmail,omitempty"`
}

// ClientInvoice is the monthly invoice document for one billing entity.
// Number and FullNumber are assigned exactly once, at first persist, and
// never change afterwards even when items are regenerated.
type ClientInvoice struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"-"`
	OwnerID         uuid.UUID           `json:"-"`
	SeriesID        uuid.UUID           `json:"-"`
	EntityID        uuid.UUID           `json:"propertyId"`
	EntityKind      EntityKind          `json:"-"`
	Number          *int                `json:"number"`
	FullNumber      *string             `json:"fullNumber"`
	PeriodYear      int                 `json:"periodYear"`
	PeriodMonth     int                 `json:"periodMonth"`
	IssueDate       time.Time           `json:"issueDate"`
	Subtotal        float64             `json:"subtotal"`
	TotalVAT        float64             `json:"totalVat"`
	RetentionRate   float64             `json:"retentionRate"`
	RetentionAmount float64             `json:"retentionAmount"`
	Total           float64             `json:"total"`
	Status          InvoiceStatus       `json:"status"`
	IsLocked        bool                `json:"isLocked"`
	Notes           *string             `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"-"`
	UpdatedAt       time.Time           `json:"-"`
	Items           []ClientInvoiceItem `json:"items"`
}

// ClientInvoiceItem is one invoice line. Items are owned wholesale by their
// invoice: regeneration deletes and recreates them, never patches in place.
type ClientInvoiceItem struct {
	ID            uuid.UUID  `json:"id"`
	InvoiceID     uuid.UUID  `json:"-"`
	Concept       string     `json:"concept"`
	Description   *string    `json:"description"`
	Quantity      float64    `json:"quantity"`
	UnitPrice     float64    `json:"unitPrice"`
	VATRate       float64    `json:"vatRate"`
	RetentionRate float64    `json:"retentionRate"`
	Total         float64    `json:"total"`
	ReservationID *uuid.UUID `json:"reservationId"`
	Order         int        `json:"-"`
}
