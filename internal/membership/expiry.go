package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
)

type userUpdater interface {
	Update(ctx context.Context, id string, fields map[string]any) error
}

type auditRecorder interface {
	Record(ctx context.Context, event *subscriptionevents.Event, activeMember *bool) error
}

type CheckerParams struct {
	Users   userUpdater
	Events  auditRecorder
	Logger  *logger.Logger
	Metrics *metrics.MembershipMetrics
}

// Checker moves canceled memberships past their end date to expired.
type Checker struct {
	users   userUpdater
	events  auditRecorder
	logg    *logger.Logger
	metrics *metrics.MembershipMetrics
	now     func() time.Time
}

func NewChecker(params CheckerParams) (*Checker, error) {
	if params.Users == nil {
		return nil, errors.New("users repository is required")
	}
	if params.Events == nil {
		return nil, errors.New("subscription events recorder is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Checker{
		users:   params.Users,
		events:  params.Events,
		logg:    logg,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// CheckAndExpire runs the check for a session read. A true result means the
// stored user changed and the caller's copy is stale.
func (c *Checker) CheckAndExpire(ctx context.Context, user *users.User) (bool, error) {
	return c.CheckAndExpireFrom(ctx, user, enums.EventSourceSession)
}

// CheckAndExpireFrom is CheckAndExpire with an explicit audit source.
func (c *Checker) CheckAndExpireFrom(ctx context.Context, user *users.User, source enums.EventSource) (bool, error) {
	if !Expirable(user) {
		return false, nil
	}
	endsAt := user.SubscriptionEndsAt.Time
	now := c.now().UTC()
	if !now.After(endsAt) {
		return false, nil
	}

	logCtx := c.logg.WithFields(c.logg.WithUserID(ctx, user.ID), map[string]any{
		"subscription_id": user.SubscriptionID,
		"ends_at":         instant.Format(endsAt),
		"source":          string(source),
	})

	if err := c.users.Update(ctx, user.ID, map[string]any{
		users.FieldActiveMember:       false,
		users.FieldSubscriptionStatus: string(enums.SubscriptionStatusExpired),
		users.FieldExpiredAt:          now,
		users.FieldUpdatedAt:          now,
	}); err != nil {
		return false, fmt.Errorf("expire membership %s: %w", user.ID, err)
	}
	c.metrics.IncExpiration(string(source))

	inactive := false
	if err := c.events.Record(ctx, &subscriptionevents.Event{
		UserID:          user.ID,
		SubscriptionID:  user.SubscriptionID,
		EventType:       enums.SubscriptionEventAccessExpiredOnLogin,
		NewStatus:       string(enums.SubscriptionStatusExpired),
		ExpiredAt:       instant.New(now),
		OriginalEndDate: instant.New(endsAt),
		Source:          source,
		ProcessedAt:     instant.Time{Time: now},
	}, &inactive); err != nil {
		// the user is already expired; only the audit row is missing
		c.logg.Error(logCtx, "failed to append expiry audit event", err)
		return true, nil
	}

	c.logg.Info(logCtx, "membership expired")
	return true, nil
}

// Expirable reports whether user is in the grace period with a known end date.
func Expirable(user *users.User) bool {
	return user.InGracePeriod() && user.SubscriptionEndsAt.Valid()
}
