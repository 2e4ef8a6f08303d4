package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultSeriesPrefix is the prefix of auto-provisioned series.
const DefaultSeriesPrefix = "F"

// SeriesService owns per-user, per-year numbering series. Series are
// created lazily on the first invoice request and never deleted, only
// deactivated.
type SeriesService struct {
	repo   SeriesRepository
	users  UserRepository
	logger *slog.Logger
}

// NewSeriesService builds a SeriesService.
func NewSeriesService(repo SeriesRepository, users UserRepository, logger *slog.Logger) *SeriesService {
	return &SeriesService{repo: repo, users: users, logger: logger}
}

// EnsureSeries resolves the active STANDARD series for (user, year),
// walking the provisioning state machine:
//
//	no config            -> auto-create one from the user's stored identity
//	no active series     -> reactivate an existing F-series for the year,
//	                        or create a fresh default one
//	active series exists -> reuse it (the default one is preferred)
func (s *SeriesService) EnsureSeries(ctx context.Context, userID uuid.UUID, year int) (*InvoiceSeries, *UserInvoiceConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		cfg, err = s.provisionConfig(ctx, userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("billing: resolve invoice config: %w", err)
	}

	series, err := s.repo.FindActiveSeries(ctx, cfg.ID, year)
	if err == nil {
		return series, cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("billing: find active series: %w", err)
	}

	existing, err := s.repo.FindSeries(ctx, cfg.ID, DefaultSeriesPrefix, year)
	if err == nil {
		if !existing.IsActive {
			if err := s.repo.ActivateSeries(ctx, existing.ID); err != nil {
				return nil, nil, fmt.Errorf("billing: reactivate series: %w", err)
			}
			existing.IsActive = true
			s.logger.Info("reactivated invoice series",
				slog.String("series_id", existing.ID.String()),
				slog.Int("year", year))
		}
		return existing, cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("billing: find series: %w", err)
	}

	created, err := s.repo.CreateSeries(ctx, InvoiceSeries{
		ConfigID:      cfg.ID,
		Name:          fmt.Sprintf("Facturas %d", year),
		Prefix:        DefaultSeriesPrefix,
		Year:          year,
		Type:          SeriesTypeStandard,
		CurrentNumber: 0,
		ResetYearly:   true,
		LastResetYear: year,
		IsDefault:     true,
		IsActive:      true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("billing: create series: %w", err)
	}
	s.logger.Info("created invoice series",
		slog.String("series_id", created.ID.String()),
		slog.Int("year", year))
	return created, cfg, nil
}

// provisionConfig creates a provisional invoice config from the user's
// stored name and email.
func (s *SeriesService) provisionConfig(ctx context.Context, userID uuid.UUID) (*UserInvoiceConfig, error) {
	name, email, err := s.users.GetIdentity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user identity: %w", err)
	}
	if name == "" {
		name = "Mi Empresa"
	}
	return s.repo.CreateConfig(ctx, UserInvoiceConfig{
		UserID:       userID,
		BusinessName: name,
		Country:      "España",
		Email:        email,
	})
}

// FormatFullNumber derives the display number deterministically from its
// series parts, e.g. F0012/2026. Collision-free within a series.
func FormatFullNumber(prefix string, number, year int) string {
	return fmt.Sprintf("%s%04d/%d", prefix, number, year)
}
