package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rentabill/rentabill/internal/shared"
)

func newTestServer(t *testing.T, f *resolverFixture) *chi.Mux {
	t.Helper()
	h := NewHandler(testLogger(), f.resolver, f.invoices)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, userID uuid.UUID, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userID != uuid.Nil {
		req = req.WithContext(shared.ContextWithUserID(context.Background(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMonthlyInvoiceEndpoint(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	target := fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=3", f.entityID)
	rec := doRequest(t, router, f.userID, target)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Invoice struct {
			FullNumber string `json:"fullNumber"`
			Status     string `json:"status"`
			Total      float64
			Items      []json.RawMessage `json:"items"`
			Property   struct {
				Name string `json:"name"`
				City string `json:"city"`
			} `json:"property"`
			Owner struct {
				Type string `json:"type"`
			} `json:"owner"`
		} `json:"invoice"`
		ManagerConfig struct {
			BusinessName string `json:"businessName"`
		} `json:"managerConfig"`
		BillingSettings struct {
			CommissionPct float64 `json:"commissionPct"`
		} `json:"billingSettings"`
		DetailLevel string `json:"detailLevel"`
		IsNew       bool   `json:"isNew"`
		Regenerated bool   `json:"regenerated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "F0001/2026", body.Invoice.FullNumber)
	require.Equal(t, "DRAFT", body.Invoice.Status)
	require.Len(t, body.Invoice.Items, 2)
	require.Equal(t, "Apartamento Centro", body.Invoice.Property.Name)
	require.Equal(t, "EMPRESA", body.Invoice.Owner.Type)
	require.Equal(t, "Gestora Sol", body.ManagerConfig.BusinessName)
	require.Equal(t, 20.0, body.BillingSettings.CommissionPct)
	require.Equal(t, "DETAILED", body.DetailLevel)
	require.True(t, body.IsNew)
	require.False(t, body.Regenerated)
}

func TestMonthlyInvoiceValidation(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	cases := []struct {
		name   string
		target string
		status int
	}{
		{"missing entity", "/invoices/property-month?year=2026&month=3", http.StatusBadRequest},
		{"bad uuid", "/invoices/property-month?propertyId=nope&year=2026&month=3", http.StatusBadRequest},
		{"missing year", fmt.Sprintf("/invoices/property-month?propertyId=%s&month=3", f.entityID), http.StatusBadRequest},
		{"month out of range", fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=13", f.entityID), http.StatusBadRequest},
		{"bad detail level", fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=3&detailLevel=FULL", f.entityID), http.StatusBadRequest},
		{"unknown entity", fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=3", uuid.New()), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, f.userID, tc.target)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMonthlyInvoiceRequiresIdentity(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	target := fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=3", f.entityID)
	rec := doRequest(t, router, uuid.Nil, target)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMonthlyInvoiceLockedPeriodConflict(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	full := "F0002/2026"
	issuedID := uuid.New()
	f.invoices.invoices[issuedID] = &ClientInvoice{
		ID:          issuedID,
		UserID:      f.userID,
		OwnerID:     f.ownerID,
		FullNumber:  &full,
		PeriodYear:  2026,
		PeriodMonth: 3,
		Status:      InvoiceStatusIssued,
	}

	target := fmt.Sprintf("/invoices/property-month?propertyId=%s&year=2026&month=3", f.entityID)
	rec := doRequest(t, router, f.userID, target)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Title   string `json:"title"`
		Status  int    `json:"status"`
		Invoice struct {
			ID         string `json:"id"`
			FullNumber string `json:"fullNumber"`
			Status     string `json:"status"`
		} `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Period Locked", body.Title)
	require.Equal(t, issuedID.String(), body.Invoice.ID)
	require.Equal(t, "F0002/2026", body.Invoice.FullNumber)
	require.Equal(t, "ISSUED", body.Invoice.Status)
}

func TestGetInvoiceEndpoint(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	res, err := f.resolver.Resolve(context.Background(), f.request())
	require.NoError(t, err)

	rec := doRequest(t, router, f.userID, "/invoices/"+res.Invoice.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		FullNumber string `json:"fullNumber"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "F0001/2026", body.FullNumber)

	rec = doRequest(t, router, f.userID, "/invoices/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Another user's invoices stay invisible.
	rec = doRequest(t, router, uuid.New(), "/invoices/"+res.Invoice.ID.String())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSVEndpoint(t *testing.T) {
	f := newResolverFixture(t, nil)
	router := newTestServer(t, f)

	res, err := f.resolver.Resolve(context.Background(), f.request())
	require.NoError(t, err)

	rec := doRequest(t, router, f.userID, "/invoices/"+res.Invoice.ID.String()+"/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "factura-F0001-2026.csv")

	body := rec.Body.String()
	require.Contains(t, body, "# Factura: F0001/2026")
	require.Contains(t, body, "# Periodo: Marzo 2026")
	require.Contains(t, body, "Concepto")
	require.Contains(t, body, "Limpieza")
	// Spanish decimal comma.
	require.Contains(t, body, "58,08")
	require.True(t, strings.Contains(body, "\r\n"))
}
