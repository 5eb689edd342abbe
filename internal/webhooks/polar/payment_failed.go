package polar

import (
	"context"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// handlePaymentFailed flags the member. Access is left to the subscription
// events that follow.
func (s *Service) handlePaymentFailed(ctx context.Context, event *Event, p *PaymentFailedPayload) error {
	subscriptionID := strings.TrimSpace(p.SubscriptionID)
	email := strings.TrimSpace(p.Customer.Email)
	ctx = s.logg.WithField(ctx, "subscription_id", subscriptionID)

	if subscriptionID == "" && email == "" {
		s.logg.Warn(ctx, "payment.failed without subscription id or email; skipping")
		return nil
	}

	var (
		user *users.User
		err  error
	)
	if subscriptionID != "" {
		user, err = s.users.FindBySubscriptionID(ctx, subscriptionID)
		if err != nil {
			return dependencyError(err, "find user by subscription for failed payment")
		}
	}
	// a renewed subscription id may not be stored yet
	if user == nil && email != "" {
		user, err = s.users.FindByEmail(ctx, email)
		if err != nil {
			return dependencyError(err, "find user by email for failed payment")
		}
	}
	if user == nil {
		s.logg.Warn(ctx, "payment.failed for unknown customer; skipping")
		return nil
	}
	ctx = s.logg.WithUserID(ctx, user.ID)

	now := s.now().UTC()
	if err := s.users.Update(ctx, user.ID, map[string]any{
		users.FieldLastPaymentFailed:   true,
		users.FieldLastPaymentFailedAt: now,
		users.FieldUpdatedAt:           now,
		users.FieldWebhookProcessedAt:  now,
	}); err != nil {
		return dependencyError(err, "flag failed payment")
	}

	if subscriptionID == "" {
		subscriptionID = user.SubscriptionID
	}
	active := user.ActiveMember
	if err := s.events.Record(ctx, &subscriptionevents.Event{
		UserID:         user.ID,
		SubscriptionID: subscriptionID,
		EventType:      enums.SubscriptionEventPaymentFailed,
		NewStatus:      string(user.SubscriptionStatus),
		Source:         enums.EventSourceWebhook,
		ProcessedAt:    instant.Time{Time: now},
		Payload:        event.Data,
	}, &active); err != nil {
		return dependencyError(err, "append payment failed audit event")
	}

	s.logg.Info(ctx, "payment failure recorded")
	return nil
}
