package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

type stubPurger struct {
	deleted int
	err     error
	cutoff  time.Time
	limit   int
}

func (s *stubPurger) PurgeExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.cutoff = now
	s.limit = limit
	return s.deleted, s.err
}

func TestWebhookLedgerRetentionJobPurgesWithCutoff(t *testing.T) {
	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	purger := &stubPurger{deleted: 4}
	job, err := NewWebhookLedgerRetentionJob(WebhookLedgerRetentionJobParams{Logger: logger.Nop(), Ledger: purger, BatchSize: 25})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*webhookLedgerRetentionJob).now = func() time.Time { return now }

	if job.Name() != "webhook-ledger-retention" {
		t.Fatalf("unexpected name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !purger.cutoff.Equal(now) || purger.limit != 25 {
		t.Fatalf("unexpected purge args cutoff=%v limit=%d", purger.cutoff, purger.limit)
	}
}

func TestWebhookLedgerRetentionJobErrors(t *testing.T) {
	if _, err := NewWebhookLedgerRetentionJob(WebhookLedgerRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected ledger required error")
	}
	job, err := NewWebhookLedgerRetentionJob(WebhookLedgerRetentionJobParams{Logger: logger.Nop(), Ledger: &stubPurger{err: errors.New("boom")}})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected purge error")
	}
}
