package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/yogaflow-backend/internal/membership"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultExpiryBatchSize = 200

type SubscriptionExpiryJobParams struct {
	Logger    *logger.Logger
	Users     lapsedUserLister
	Checker   expiryChecker
	BatchSize int
}

type lapsedUserLister interface {
	ListLapsedCancellations(ctx context.Context, now time.Time, limit int) ([]users.User, error)
}

type expiryChecker interface {
	CheckAndExpireFrom(ctx context.Context, user *users.User, source enums.EventSource) (bool, error)
}

// NewSubscriptionExpiryJob expires canceled members whose grace period ran
// out without a session read.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("expiry checker required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &subscriptionExpiryJob{
		logg:    params.Logger,
		users:   params.Users,
		checker: params.Checker,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type subscriptionExpiryJob struct {
	logg    *logger.Logger
	users   lapsedUserLister
	checker expiryChecker
	batch   int
	now     func() time.Time
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	candidates, err := j.users.ListLapsedCancellations(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("list lapsed cancellations: %w", err)
	}

	var (
		expired int
		skipped int
		errs    error
	)
	for i := range candidates {
		user := &candidates[i]
		if !membership.Expirable(user) {
			skipped++
			continue
		}
		ok, err := j.checker.CheckAndExpireFrom(ctx, user, enums.EventSourceSweep)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", user.ID, err))
			continue
		}
		if ok {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"expired":    expired,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
		"batch_size": j.batch,
	})
	j.logg.Info(logCtx, "subscription expiry sweep complete")
	return errs
}
