package billing

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// monthlyInvoiceQuery carries the parsed and validated query parameters of
// the monthly invoice endpoint.
type monthlyInvoiceQuery struct {
	EntityID    uuid.UUID
	Kind        EntityKind
	Year        int    `validate:"required,min=2000,max=2200"`
	Month       int    `validate:"required,min=1,max=12"`
	DetailLevel string `validate:"omitempty,oneof=DETAILED SUMMARY"`
	Regenerate  bool
}

func parseMonthlyInvoiceQuery(r *http.Request) (monthlyInvoiceQuery, error) {
	q := r.URL.Query()
	var out monthlyInvoiceQuery

	switch {
	case q.Get("billingUnitId") != "":
		id, err := uuid.Parse(q.Get("billingUnitId"))
		if err != nil {
			return out, errBadRequest("billingUnitId must be a UUID")
		}
		out.EntityID = id
		out.Kind = EntityKindBillingUnit
	case q.Get("propertyId") != "":
		id, err := uuid.Parse(q.Get("propertyId"))
		if err != nil {
			return out, errBadRequest("propertyId must be a UUID")
		}
		out.EntityID = id
		out.Kind = EntityKindProperty
	default:
		return out, errBadRequest("propertyId or billingUnitId is required")
	}

	out.Year, _ = strconv.Atoi(q.Get("year"))
	out.Month, _ = strconv.Atoi(q.Get("month"))
	out.DetailLevel = q.Get("detailLevel")
	out.Regenerate = q.Get("regenerate") == "true"
	return out, nil
}

type badRequestError string

func errBadRequest(msg string) error    { return badRequestError(msg) }
func (e badRequestError) Error() string { return string(e) }

// entitySnapshot is the invoiced unit as embedded in responses.
type entitySnapshot struct {
	ID   uuid.UUID  `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
	City string     `json:"city"`
}

// invoicePayload is a ClientInvoice enriched with its owner and entity
// snapshots for the response body.
type invoicePayload struct {
	*ClientInvoice
	Owner  *Owner         `json:"owner"`
	Entity entitySnapshot `json:"property"`
}

// monthlyInvoiceResponse is the body of the monthly invoice endpoint.
type monthlyInvoiceResponse struct {
	Invoice         invoicePayload     `json:"invoice"`
	Series          *InvoiceSeries     `json:"series"`
	ManagerConfig   *UserInvoiceConfig `json:"managerConfig"`
	BillingSettings BillingConfig      `json:"billingSettings"`
	DetailLevel     DetailLevel        `json:"detailLevel"`
	IsNew           bool               `json:"isNew"`
	Regenerated     bool               `json:"regenerated"`
}

func newMonthlyInvoiceResponse(res *ResolveResult) monthlyInvoiceResponse {
	return monthlyInvoiceResponse{
		Invoice: invoicePayload{
			ClientInvoice: res.Invoice,
			Owner:         res.Entity.OwnerRef(),
			Entity: entitySnapshot{
				ID:   res.Entity.EntityID(),
				Kind: res.Entity.Kind(),
				Name: res.Entity.EntityName(),
				City: res.Entity.EntityCity(),
			},
		},
		Series:          res.Series,
		ManagerConfig:   res.Config,
		BillingSettings: res.Entity.Config(),
		DetailLevel:     res.DetailLevel,
		IsNew:           res.IsNew,
		Regenerated:     res.Regenerated,
	}
}
