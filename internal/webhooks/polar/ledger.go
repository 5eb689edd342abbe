package polar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"go.uber.org/multierr"
)

// LedgerCollection holds one record per processed delivery.
const LedgerCollection = "processed_webhooks"

const defaultLedgerTTL = 30 * 24 * time.Hour

// Ledger records processed deliveries. Reads fail open and writes are
// best-effort, so a storage outage can cause reprocessing but never drops
// an event.
type Ledger struct {
	store docstore.Store
	ttl   time.Duration
	logg  *logger.Logger
	now   func() time.Time
}

// NewLedger constructs a ledger; ttl <= 0 uses 30 days.
func NewLedger(store docstore.Store, ttl time.Duration, logg *logger.Logger) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{store: store, ttl: ttl, logg: logg, now: time.Now}, nil
}

// LedgerKey is the document id for a delivery.
func LedgerKey(eventID, eventType string) string {
	return fmt.Sprintf("%s_%s", eventType, eventID)
}

// IsProcessed reports whether the delivery was already handled.
func (l *Ledger) IsProcessed(ctx context.Context, eventID, eventType string) bool {
	_, err := l.store.Get(ctx, LedgerCollection, LedgerKey(eventID, eventType))
	if err == nil {
		return true
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		l.logg.Error(ctx, "webhook ledger read failed; processing event anyway", err)
	}
	return false
}

// MarkProcessed records the delivery. Failures are logged and swallowed.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID, eventType string, rawEvent []byte) {
	now := l.now().UTC()
	record := map[string]any{
		"webhookId":   eventID,
		"eventType":   eventType,
		"processedAt": now,
		"expiresAt":   now.Add(l.ttl),
		"event":       rawEventValue(rawEvent),
	}
	if err := l.store.Set(ctx, LedgerCollection, LedgerKey(eventID, eventType), record); err != nil {
		l.logg.Error(ctx, "webhook ledger write failed", err)
	}
}

// PurgeExpired deletes up to limit records whose expiresAt is before now.
func (l *Ledger) PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	docs, err := l.store.Query(ctx, LedgerCollection, docstore.Where("expiresAt", docstore.OpLess, instant.Format(now)), limit)
	if err != nil {
		return 0, fmt.Errorf("query expired ledger records: %w", err)
	}
	deleted := 0
	var errs error
	for _, doc := range docs {
		if err := l.store.Delete(ctx, LedgerCollection, doc.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", doc.ID, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

func rawEventValue(raw []byte) any {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}
