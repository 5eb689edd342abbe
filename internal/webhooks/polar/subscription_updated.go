package polar

import (
	"context"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// handleSubscriptionUpdated never fails on an unknown subscription; updates
// are frequent and advisory.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *Event, p *SubscriptionUpdatedPayload) error {
	subscriptionID := strings.TrimSpace(p.ID)
	if subscriptionID == "" {
		s.logg.Warn(ctx, "subscription.updated without subscription id; skipping")
		return nil
	}
	ctx = s.logg.WithField(ctx, "subscription_id", subscriptionID)

	user, err := s.users.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return dependencyError(err, "find user by subscription")
	}
	if user == nil {
		s.logg.Warn(ctx, "subscription.updated for unknown subscription; skipping")
		return nil
	}
	ctx = s.logg.WithUserID(ctx, user.ID)

	now := s.now().UTC()
	fields := map[string]any{
		users.FieldUpdatedAt:          now,
		users.FieldWebhookProcessedAt: now,
	}
	active := user.ActiveMember
	newStatus := strings.TrimSpace(p.Status)

	if p.CancelAtPeriodEnd && present(p.CanceledAt) {
		// scheduled cancellation: access stays until the period ends
		newStatus = string(enums.SubscriptionStatusCanceled)
		canceledAt, ok := instant.Parse(p.CanceledAt)
		if !ok {
			canceledAt = now
		}
		fields[users.FieldSubscriptionStatus] = newStatus
		fields[users.FieldCanceledAt] = canceledAt
		fields[users.FieldWillRenew] = false
		if endsAt, ok := periodEnd(p.CurrentPeriodEnd); ok {
			fields[users.FieldSubscriptionEndsAt] = endsAt
		}
	} else if newStatus != "" {
		status := enums.SubscriptionStatus(newStatus)
		fields[users.FieldSubscriptionStatus] = newStatus
		switch {
		case status.RevokesAccess():
			active = false
			fields[users.FieldActiveMember] = false
			if status == enums.SubscriptionStatusCanceled {
				fields[users.FieldCanceledAt] = now
				fields[users.FieldWillRenew] = false
			}
		case status == enums.SubscriptionStatusActive:
			active = true
			fields[users.FieldActiveMember] = true
			fields[users.FieldWillRenew] = true
		}
	} else {
		s.logg.Warn(ctx, "subscription.updated without status; only timestamps recorded")
	}

	if err := s.users.Update(ctx, user.ID, fields); err != nil {
		return dependencyError(err, "sync subscription status")
	}

	cancelAtPeriodEnd := p.CancelAtPeriodEnd
	if err := s.events.Record(ctx, &subscriptionevents.Event{
		UserID:            user.ID,
		SubscriptionID:    subscriptionID,
		EventType:         enums.SubscriptionEventUpdated,
		NewStatus:         newStatus,
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
		Source:            enums.EventSourceWebhook,
		ProcessedAt:       instant.Time{Time: now},
		Payload:           event.Data,
	}, &active); err != nil {
		return dependencyError(err, "append updated audit event")
	}

	s.logg.Info(s.logg.WithField(ctx, "new_status", newStatus), "subscription updated")
	return nil
}
