package polar

import (
	"context"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// handleSubscriptionCanceled starts the grace period. activeMember is left
// alone; the expiry checker revokes access once subscriptionEndsAt passes.
func (s *Service) handleSubscriptionCanceled(ctx context.Context, event *Event, p *SubscriptionCanceledPayload) error {
	subscriptionID := strings.TrimSpace(p.ID)
	if subscriptionID == "" {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMissingSubscriptionID, "subscription.canceled requires subscription id")
	}
	ctx = s.logg.WithField(ctx, "subscription_id", subscriptionID)

	user, err := s.users.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return dependencyError(err, "find user by subscription")
	}
	if user == nil {
		err := pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrUserNotFound, "no user for canceled subscription")
		s.logg.Error(ctx, "canceled subscription has no matching user", err)
		return err
	}
	ctx = s.logg.WithUserID(ctx, user.ID)

	now := s.now().UTC()
	endsAt := s.accessEndsAt(p.CurrentPeriodEnd, now)

	if err := s.users.Update(ctx, user.ID, map[string]any{
		users.FieldSubscriptionStatus: string(enums.SubscriptionStatusCanceled),
		users.FieldCanceledAt:         now,
		users.FieldSubscriptionEndsAt: endsAt,
		users.FieldWillRenew:          false,
		users.FieldWebhookProcessedAt: now,
	}); err != nil {
		return dependencyError(err, "mark subscription canceled")
	}

	active := user.ActiveMember
	if err := s.events.Record(ctx, &subscriptionevents.Event{
		UserID:         user.ID,
		SubscriptionID: subscriptionID,
		EventType:      enums.SubscriptionEventCanceled,
		NewStatus:      string(enums.SubscriptionStatusCanceled),
		AccessEndsAt:   instant.New(endsAt),
		Source:         enums.EventSourceWebhook,
		ProcessedAt:    instant.Time{Time: now},
		Payload:        event.Data,
	}, &active); err != nil {
		return dependencyError(err, "append canceled audit event")
	}

	s.logg.Info(s.logg.WithField(ctx, "access_ends_at", instant.Format(endsAt)), "subscription canceled; access kept until period end")
	return nil
}
