package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rentabill/rentabill/internal/observability"
)

// draftState is the resolver's tagged classification of the requested
// period. Keeping the freshness decision in one place means the "when does
// a draft count as stale" policy can change without touching persistence.
type draftState int

const (
	stateNoDraft draftState = iota
	stateDraftFresh
	stateDraftStale
)

// maxAllocationRetries bounds retries of the creation transaction when
// concurrent number allocations conflict.
const maxAllocationRetries = 3

// ResolveRequest is one billing request for (entity, period).
type ResolveRequest struct {
	UserID      uuid.UUID
	EntityID    uuid.UUID
	Kind        EntityKind
	Period      Period
	DetailLevel *DetailLevel // optional override of the entity config
	Regenerate  bool         // force regeneration even when fresh
}

// ResolveResult is the fully consistent outcome of a billing request.
type ResolveResult struct {
	Invoice     *ClientInvoice
	Entity      BillingEntity
	Series      *InvoiceSeries
	Config      *UserInvoiceConfig
	DetailLevel DetailLevel
	IsNew       bool
	Regenerated bool
}

// Resolver decides whether to return an existing draft, create a new
// numbered invoice, or regenerate a draft's items while preserving its
// number.
type Resolver struct {
	entities EntityRepository
	invoices InvoiceRepository
	series   *SeriesService
	agg      *Aggregator
	cache    *FingerprintCache
	metrics  *observability.EngineMetrics
	logger   *slog.Logger

	group singleflight.Group
	now   func() time.Time
}

// NewResolver builds a Resolver. cache and metrics may be nil.
func NewResolver(entities EntityRepository, invoices InvoiceRepository, series *SeriesService, agg *Aggregator, cache *FingerprintCache, metrics *observability.EngineMetrics, logger *slog.Logger) *Resolver {
	return &Resolver{
		entities: entities,
		invoices: invoices,
		series:   series,
		agg:      agg,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve runs the draft state machine. Concurrent identical requests are
// collapsed through singleflight; distinct requests racing on first
// creation are serialized by the database unique-draft constraint.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	key := fmt.Sprintf("%s|%s|%s|%s|%v|%t",
		req.UserID, req.Kind, req.EntityID, req.Period, req.DetailLevel, req.Regenerate)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.resolve(ctx, req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ResolveResult), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	entity, err := r.entities.FindEntity(ctx, req.UserID, req.Kind, req.EntityID)
	if err != nil {
		return nil, err
	}
	owner := entity.OwnerRef()
	if owner == nil {
		return nil, ErrMissingOwner
	}

	series, invoiceCfg, err := r.series.EnsureSeries(ctx, req.UserID, r.now().Year())
	if err != nil {
		return nil, err
	}

	// An ISSUED or PAID invoice locks the period; the resolver never
	// touches it.
	issued, err := r.invoices.FindIssuedForPeriod(ctx, req.UserID, owner.ID, req.Period)
	if err == nil {
		return nil, &LockedPeriodError{Invoice: issued}
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("billing: check issued invoices: %w", err)
	}

	cfg := entity.Config()
	detail := cfg.DetailLevel
	if detail == "" {
		detail = DetailLevelDetailed
	}
	if req.DetailLevel != nil {
		detail = *req.DetailLevel
	}
	retention := RetentionRateFor(owner.Type)

	stmt, err := r.agg.Collect(ctx, req.UserID, req.Kind, req.EntityID, req.Period)
	if err != nil {
		return nil, err
	}
	fp := SourceFingerprint(stmt, cfg, detail, retention)

	draft, err := r.invoices.FindDraft(ctx, req.UserID, req.Kind, req.EntityID, req.Period)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("billing: find draft: %w", err)
	}

	switch r.classify(ctx, draft, fp, req.Regenerate) {
	case stateDraftFresh:
		r.metrics.InvoiceFresh()
		return r.result(draft, entity, series, invoiceCfg, detail, false, false), nil

	case stateNoDraft:
		created, err := r.create(ctx, req, entity, series, stmt, cfg, detail, retention)
		if errors.Is(err, ErrDraftExists) {
			// Lost the creation race: the winner's draft is now the one to
			// regenerate.
			draft, err = r.invoices.FindDraft(ctx, req.UserID, req.Kind, req.EntityID, req.Period)
			if err != nil {
				return nil, fmt.Errorf("billing: refetch draft after race: %w", err)
			}
			return r.regenerateInto(ctx, draft, entity, series, invoiceCfg, stmt, cfg, detail, retention, fp)
		}
		if err != nil {
			return nil, err
		}
		r.cache.Store(ctx, created.ID, fp)
		r.metrics.InvoiceCreated()
		return r.result(created, entity, series, invoiceCfg, detail, true, false), nil

	default: // stateDraftStale
		return r.regenerateInto(ctx, draft, entity, series, invoiceCfg, stmt, cfg, detail, retention, fp)
	}
}

// classify applies the freshness policy: no draft, stale (forced or source
// data changed since the last generation), or fresh (fingerprint match).
func (r *Resolver) classify(ctx context.Context, draft *ClientInvoice, fp string, forced bool) draftState {
	switch {
	case draft == nil:
		return stateNoDraft
	case forced:
		return stateDraftStale
	case r.cache.Matches(ctx, draft.ID, fp):
		return stateDraftFresh
	default:
		return stateDraftStale
	}
}

// create persists a brand-new draft, allocating its number inside the same
// transaction as the insert. The allocation is retried on transient
// conflicts; gaps are possible only through rollback, duplicates never.
func (r *Resolver) create(ctx context.Context, req ResolveRequest, entity BillingEntity, series *InvoiceSeries, stmt Statement, cfg BillingConfig, detail DetailLevel, retention float64) (*ClientInvoice, error) {
	items, totals := ComputeItems(stmt, cfg, detail, retention, req.Period)

	var created *ClientInvoice
	var lastErr error
	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		lastErr = r.invoices.WithTx(ctx, func(ctx context.Context, tx InvoiceTx) error {
			number, err := tx.AllocateNumber(ctx, series.ID)
			if err != nil {
				return fmt.Errorf("allocate number: %w", err)
			}
			full := FormatFullNumber(series.Prefix, number, series.Year)
			inv := &ClientInvoice{
				UserID:          req.UserID,
				OwnerID:         entity.OwnerRef().ID,
				SeriesID:        series.ID,
				EntityID:        req.EntityID,
				EntityKind:      req.Kind,
				Number:          &number,
				FullNumber:      &full,
				PeriodYear:      req.Period.Year,
				PeriodMonth:     req.Period.Month,
				IssueDate:       r.now(),
				Subtotal:        totals.Subtotal,
				TotalVAT:        totals.TotalVAT,
				RetentionRate:   totals.RetentionRate,
				RetentionAmount: totals.RetentionAmount,
				Total:           totals.Total,
				Status:          InvoiceStatusDraft,
			}
			if err := tx.CreateInvoice(ctx, inv); err != nil {
				return err
			}
			for i := range items {
				items[i].InvoiceID = inv.ID
				if err := tx.InsertItem(ctx, &items[i]); err != nil {
					return fmt.Errorf("insert item: %w", err)
				}
			}
			inv.Items = items
			created = inv
			return nil
		})
		if lastErr == nil {
			return created, nil
		}
		if errors.Is(lastErr, ErrDraftExists) {
			return nil, lastErr
		}
		if !errors.Is(lastErr, ErrAllocationConflict) {
			return nil, fmt.Errorf("billing: create invoice: %w", lastErr)
		}
		r.metrics.AllocationRetry()
		r.logger.Warn("invoice number allocation conflict, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("series_id", series.ID.String()))
	}
	return nil, fmt.Errorf("%w: %v", ErrAllocationConflict, lastErr)
}

// regenerateInto replaces a draft's items wholesale and rewrites its
// totals and owner reference, preserving number and fullNumber unchanged.
// Delete, totals update and inserts share one transaction.
func (r *Resolver) regenerateInto(ctx context.Context, draft *ClientInvoice, entity BillingEntity, series *InvoiceSeries, invoiceCfg *UserInvoiceConfig, stmt Statement, cfg BillingConfig, detail DetailLevel, retention float64, fp string) (*ResolveResult, error) {
	items, totals := ComputeItems(stmt, cfg, detail, retention, Period{Year: draft.PeriodYear, Month: draft.PeriodMonth})

	err := r.invoices.WithTx(ctx, func(ctx context.Context, tx InvoiceTx) error {
		if err := tx.DeleteItems(ctx, draft.ID); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := tx.UpdateInvoice(ctx, draft.ID, entity.OwnerRef().ID, totals); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		for i := range items {
			items[i].InvoiceID = draft.ID
			if err := tx.InsertItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billing: regenerate invoice: %w", err)
	}

	draft.OwnerID = entity.OwnerRef().ID
	draft.Subtotal = totals.Subtotal
	draft.TotalVAT = totals.TotalVAT
	draft.RetentionRate = totals.RetentionRate
	draft.RetentionAmount = totals.RetentionAmount
	draft.Total = totals.Total
	draft.Items = items

	r.cache.Store(ctx, draft.ID, fp)
	r.metrics.InvoiceRegenerated()
	return r.result(draft, entity, series, invoiceCfg, detail, false, true), nil
}

func (r *Resolver) result(inv *ClientInvoice, entity BillingEntity, series *InvoiceSeries, cfg *UserInvoiceConfig, detail DetailLevel, isNew, regenerated bool) *ResolveResult {
	return &ResolveResult{
		Invoice:     inv,
		Entity:      entity,
		Series:      series,
		Config:      cfg,
		DetailLevel: detail,
		IsNew:       isNew,
		Regenerated: regenerated,
	}
}
