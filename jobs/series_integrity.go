package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/rentabill/rentabill/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SeriesIntegrityJob audits invoice numbering. It looks for two violations
// that the engine's constraints should make impossible: duplicate full
// numbers within one series, and more than one DRAFT invoice for the same
// (user, entity, period). Findings are logged and counted, never repaired
// automatically.
type SeriesIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSeriesIntegrityJob initialises the series integrity handler.
func NewSeriesIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SeriesIntegrityJob {
	return &SeriesIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *SeriesIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("series integrity: handler not configured")
	}
	var payload SeriesIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskBillingSeriesIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("year", payload.Year))
	logger.Info("starting series integrity scan")

	duplicates, err := j.scanDuplicateNumbers(ctx, payload.Year)
	if err != nil {
		resultErr = err
		logger.Error("duplicate number scan failed", slog.Any("error", err))
		return resultErr
	}
	for _, d := range duplicates {
		logger.Warn("duplicate invoice number detected",
			slog.String("series_id", d.SeriesID),
			slog.String("full_number", d.FullNumber),
			slog.Int("count", d.Count),
		)
	}
	j.metrics().AddViolations("duplicate_number", len(duplicates))

	multiDrafts, err := j.scanMultipleDrafts(ctx)
	if err != nil {
		resultErr = err
		logger.Error("multi-draft scan failed", slog.Any("error", err))
		return resultErr
	}
	for _, m := range multiDrafts {
		logger.Warn("multiple drafts for one period detected",
			slog.String("user_id", m.UserID),
			slog.String("entity_id", m.EntityID),
			slog.String("period", m.Period),
			slog.Int("count", m.Count),
		)
	}
	j.metrics().AddViolations("multiple_drafts", len(multiDrafts))

	logger.Info("completed series integrity scan",
		slog.Int("duplicate_numbers", len(duplicates)),
		slog.Int("multiple_drafts", len(multiDrafts)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

type duplicateNumber struct {
	SeriesID   string
	FullNumber string
	Count      int
}

func (j *SeriesIntegrityJob) scanDuplicateNumbers(ctx context.Context, year int) ([]duplicateNumber, error) {
	if j.Pool == nil {
		return nil, errors.New("series integrity: pool not configured")
	}
	query := `SELECT series_id::text, full_number, COUNT(*)
FROM client_invoices
WHERE full_number IS NOT NULL AND ($1 = 0 OR period_year = $1)
GROUP BY series_id, full_number
HAVING COUNT(*) > 1
ORDER BY series_id, full_number`
	rows, err := j.Pool.Query(ctx, query, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []duplicateNumber
	for rows.Next() {
		var d duplicateNumber
		if err := rows.Scan(&d.SeriesID, &d.FullNumber, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type multiDraft struct {
	UserID   string
	EntityID string
	Period   string
	Count    int
}

func (j *SeriesIntegrityJob) scanMultipleDrafts(ctx context.Context) ([]multiDraft, error) {
	if j.Pool == nil {
		return nil, errors.New("series integrity: pool not configured")
	}
	query := `SELECT user_id::text, entity_id::text,
       to_char(make_date(period_year, period_month, 1), 'YYYY-MM'), COUNT(*)
FROM client_invoices
WHERE status = 'DRAFT'
GROUP BY user_id, entity_kind, entity_id, period_year, period_month
HAVING COUNT(*) > 1
ORDER BY user_id, entity_id`
	rows, err := j.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []multiDraft
	for rows.Next() {
		var m multiDraft
		if err := rows.Scan(&m.UserID, &m.EntityID, &m.Period, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (j *SeriesIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBillingSeriesIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskBillingSeriesIntegrity))
}

func (j *SeriesIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
