package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memorySeriesRepo struct {
	configs map[uuid.UUID]*UserInvoiceConfig // by user id
	series  map[uuid.UUID]*InvoiceSeries
}

func newMemorySeriesRepo() *memorySeriesRepo {
	return &memorySeriesRepo{
		configs: make(map[uuid.UUID]*UserInvoiceConfig),
		series:  make(map[uuid.UUID]*InvoiceSeries),
	}
}

func (r *memorySeriesRepo) GetConfig(ctx context.Context, userID uuid.UUID) (*UserInvoiceConfig, error) {
	cfg, ok := r.configs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *cfg
	return &out, nil
}

func (r *memorySeriesRepo) CreateConfig(ctx context.Context, cfg UserInvoiceConfig) (*UserInvoiceConfig, error) {
	cfg.ID = uuid.New()
	r.configs[cfg.UserID] = &cfg
	out := cfg
	return &out, nil
}

func (r *memorySeriesRepo) FindActiveSeries(ctx context.Context, configID uuid.UUID, year int) (*InvoiceSeries, error) {
	var fallback *InvoiceSeries
	for _, s := range r.series {
		if s.ConfigID != configID || s.Year != year || s.Type != SeriesTypeStandard || !s.IsActive {
			continue
		}
		if s.IsDefault {
			out := *s
			return &out, nil
		}
		fallback = s
	}
	if fallback != nil {
		out := *fallback
		return &out, nil
	}
	return nil, ErrNotFound
}

func (r *memorySeriesRepo) FindSeries(ctx context.Context, configID uuid.UUID, prefix string, year int) (*InvoiceSeries, error) {
	for _, s := range r.series {
		if s.ConfigID == configID && s.Prefix == prefix && s.Year == year {
			out := *s
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memorySeriesRepo) CreateSeries(ctx context.Context, s InvoiceSeries) (*InvoiceSeries, error) {
	s.ID = uuid.New()
	stored := s
	r.series[s.ID] = &stored
	out := s
	return &out, nil
}

func (r *memorySeriesRepo) ActivateSeries(ctx context.Context, id uuid.UUID) error {
	s, ok := r.series[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = true
	return nil
}

func (r *memorySeriesRepo) GetSeries(ctx context.Context, id uuid.UUID) (*InvoiceSeries, error) {
	s, ok := r.series[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s
	return &out, nil
}

type memoryUserRepo struct {
	name  string
	email string
}

func (r *memoryUserRepo) GetIdentity(ctx context.Context, userID uuid.UUID) (string, string, error) {
	return r.name, r.email, nil
}

func TestEnsureSeriesProvisionsConfigAndSeries(t *testing.T) {
	repo := newMemorySeriesRepo()
	users := &memoryUserRepo{name: "Gestora Sol", email: "sol@example.com"}
	svc := NewSeriesService(repo, users, testLogger())
	userID := uuid.New()

	series, cfg, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)
	require.Equal(t, "Gestora Sol", cfg.BusinessName)
	require.Equal(t, "sol@example.com", cfg.Email)
	require.Equal(t, "España", cfg.Country)

	require.Equal(t, "F", series.Prefix)
	require.Equal(t, 2026, series.Year)
	require.Equal(t, "Facturas 2026", series.Name)
	require.Equal(t, 0, series.CurrentNumber)
	require.True(t, series.IsActive)
	require.True(t, series.IsDefault)
	require.True(t, series.ResetYearly)
}

func TestEnsureSeriesFallbackBusinessName(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := NewSeriesService(repo, &memoryUserRepo{email: "x@example.com"}, testLogger())

	_, cfg, err := svc.EnsureSeries(context.Background(), uuid.New(), 2026)
	require.NoError(t, err)
	require.Equal(t, "Mi Empresa", cfg.BusinessName)
}

func TestEnsureSeriesReusesActiveSeries(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := NewSeriesService(repo, &memoryUserRepo{name: "G"}, testLogger())
	userID := uuid.New()

	first, _, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)
	second, _, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.series, 1)
}

func TestEnsureSeriesReactivatesDeactivated(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := NewSeriesService(repo, &memoryUserRepo{name: "G"}, testLogger())
	userID := uuid.New()

	series, _, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)

	repo.series[series.ID].IsActive = false

	again, _, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)
	require.Equal(t, series.ID, again.ID)
	require.True(t, again.IsActive)
	require.True(t, repo.series[series.ID].IsActive)
	require.Len(t, repo.series, 1)
}

func TestEnsureSeriesSeparateYears(t *testing.T) {
	repo := newMemorySeriesRepo()
	svc := NewSeriesService(repo, &memoryUserRepo{name: "G"}, testLogger())
	userID := uuid.New()

	s26, _, err := svc.EnsureSeries(context.Background(), userID, 2026)
	require.NoError(t, err)
	s27, _, err := svc.EnsureSeries(context.Background(), userID, 2027)
	require.NoError(t, err)
	require.NotEqual(t, s26.ID, s27.ID)
	require.Equal(t, 0, s27.CurrentNumber)
}

func TestFormatFullNumber(t *testing.T) {
	require.Equal(t, "F0012/2026", FormatFullNumber("F", 12, 2026))
	require.Equal(t, "F0001/2026", FormatFullNumber("F", 1, 2026))
	require.Equal(t, "F12345/2026", FormatFullNumber("F", 12345, 2026))
}
