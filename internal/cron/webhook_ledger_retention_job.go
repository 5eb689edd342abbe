package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

const defaultLedgerBatchSize = 500

type WebhookLedgerRetentionJobParams struct {
	Logger    *logger.Logger
	Ledger    ledgerPurger
	BatchSize int
}

type ledgerPurger interface {
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewWebhookLedgerRetentionJob deletes processed-delivery records past their expiresAt.
func NewWebhookLedgerRetentionJob(params WebhookLedgerRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("webhook ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultLedgerBatchSize
	}
	return &webhookLedgerRetentionJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type webhookLedgerRetentionJob struct {
	logg   *logger.Logger
	ledger ledgerPurger
	batch  int
	now    func() time.Time
}

func (j *webhookLedgerRetentionJob) Name() string { return "webhook-ledger-retention" }

func (j *webhookLedgerRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	deleted, err := j.ledger.PurgeExpired(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
		"batch_size":   j.batch,
	})
	if err != nil {
		return fmt.Errorf("webhook ledger retention: %w", err)
	}
	j.logg.Info(logCtx, "webhook ledger retention cleanup complete")
	return nil
}
