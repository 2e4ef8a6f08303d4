package billing

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// SourceFingerprint hashes everything that feeds item computation: the
// statement, the effective config, the detail level and the retention
// rate. Two requests with equal fingerprints would regenerate into
// byte-identical items, which is what lets the resolver skip the
// delete+recompute+insert cycle for fresh drafts.
func SourceFingerprint(stmt Statement, cfg BillingConfig, detail DetailLevel, retentionRate float64) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "cfg|%.4f|%.4f|%.4f|%t|%s|%s|%.2f\n",
		cfg.CommissionPct, cfg.CommissionVAT, cfg.CleaningFee,
		cfg.CleaningVATIncluded, cfg.SingleConceptText, detail, retentionRate)
	for _, r := range stmt.Reservations {
		fmt.Fprintf(h, "res|%s|%s|%d|%d|%.4f|%.4f|%s\n",
			r.ID, r.GuestName, r.CheckIn.Unix(), r.CheckOut.Unix(),
			r.HostEarnings, r.CleaningFee, r.Status)
	}
	for _, e := range stmt.Expenses {
		fmt.Fprintf(h, "exp|%s|%d|%s|%.4f|%.4f\n",
			e.ID, e.Date.Unix(), e.Concept, e.Amount, e.VATAmount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintCache remembers the last generated fingerprint per draft
// invoice. Purely an optimization: a miss or a redis failure simply means
// the draft counts as stale and gets regenerated, exactly as if the cache
// did not exist.
type FingerprintCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewFingerprintCache builds a cache. A nil client disables caching.
func NewFingerprintCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *FingerprintCache {
	return &FingerprintCache{client: client, ttl: ttl, logger: logger}
}

func (c *FingerprintCache) key(invoiceID uuid.UUID) string {
	return fmt.Sprintf("billing:invoice:%s:fingerprint", invoiceID)
}

// Matches reports whether the stored fingerprint for the invoice equals fp.
func (c *FingerprintCache) Matches(ctx context.Context, invoiceID uuid.UUID, fp string) bool {
	if c == nil || c.client == nil {
		return false
	}
	stored, err := c.client.Get(ctx, c.key(invoiceID)).Result()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("fingerprint cache read", slog.Any("error", err))
		}
		return false
	}
	return stored == fp
}

// Store records the fingerprint of the items just generated.
func (c *FingerprintCache) Store(ctx context.Context, invoiceID uuid.UUID, fp string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, c.key(invoiceID), fp, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("fingerprint cache write", slog.Any("error", err))
	}
}

// Invalidate drops the stored fingerprint, forcing the next request to
// regenerate.
func (c *FingerprintCache) Invalidate(ctx context.Context, invoiceID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(invoiceID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("fingerprint cache delete", slog.Any("error", err))
	}
}
