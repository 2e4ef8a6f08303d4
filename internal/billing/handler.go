package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentabill/rentabill/internal/platform/httpx"
	"github.com/rentabill/rentabill/internal/shared"
)

// Handler manages billing endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	invoices InvoiceRepository
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, invoices InvoiceRepository) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		invoices: invoices,
		validate: validator.New(),
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/property-month", h.monthlyInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/export.csv", h.exportCSV)
}

// monthlyInvoice resolves the draft invoice for (entity, period), creating
// or regenerating it as needed.
func (h *Handler) monthlyInvoice(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	q, err := parseMonthlyInvoiceQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(q); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := NewPeriod(q.Year, q.Month)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	req := ResolveRequest{
		UserID:     userID,
		EntityID:   q.EntityID,
		Kind:       q.Kind,
		Period:     period,
		Regenerate: q.Regenerate,
	}
	if q.DetailLevel != "" {
		detail := DetailLevel(q.DetailLevel)
		req.DetailLevel = &detail
	}

	res, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		h.respondResolveError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newMonthlyInvoiceResponse(res))
}

// getInvoice returns one invoice with its items.
func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	userID := shared.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be a UUID")
		return
	}

	inv, err := h.invoices.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "invoice not found")
			return
		}
		h.logger.Error("get invoice", slog.Any("error", err), slog.String("invoice_id", id.String()))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// lockedPeriodResponse is the 409 body: problem details plus a snapshot of
// the invoice that locks the period.
type lockedPeriodResponse struct {
	httpx.ProblemDetail
	Invoice *ClientInvoice `json:"invoice"`
}

func (h *Handler) respondResolveError(w http.ResponseWriter, err error) {
	var locked *LockedPeriodError
	var badReq badRequestError
	switch {
	case errors.As(err, &locked):
		httpx.JSON(w, http.StatusConflict, lockedPeriodResponse{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Period Locked",
				Status: http.StatusConflict,
				Detail: locked.Error(),
			},
			Invoice: locked.Invoice,
		})
	case errors.Is(err, ErrEntityNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "property not found")
	case errors.Is(err, ErrMissingOwner):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "the property has no owner configured")
	case errors.Is(err, ErrInvalidPeriod), errors.As(err, &badReq):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAllocationConflict):
		h.logger.Error("invoice number allocation exhausted retries", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not allocate an invoice number")
	default:
		h.logger.Error("resolve monthly invoice", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
