package subscriptionevents

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

type appender interface {
	Append(ctx context.Context, event *Event) (string, error)
}

type ServiceParams struct {
	Repository appender
	Notifier   Notifier
	Logger     *logger.Logger
}

// Service writes audit rows and publishes the matching notification.
type Service struct {
	repo     appender
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, errors.New("subscription events repository is required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: params.Repository, notifier: notifier, logg: logg, now: time.Now}, nil
}

// Record appends the audit row, then notifies. Append errors are returned;
// notification errors are only logged.
func (s *Service) Record(ctx context.Context, event *Event, activeMember *bool) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = instant.Time{Time: s.now().UTC()}
	}
	if _, err := s.repo.Append(ctx, event); err != nil {
		return err
	}
	s.Notify(ctx, Notification{
		UserID:         event.UserID,
		SubscriptionID: event.SubscriptionID,
		EventType:      string(event.EventType),
		Status:         event.NewStatus,
		ActiveMember:   activeMember,
		Source:         string(event.Source),
		OccurredAt:     event.ProcessedAt,
	})
	return nil
}

// Notify publishes a notification, logging failures.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = instant.Time{Time: s.now().UTC()}
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":    n.UserID,
			"event_type": n.EventType,
		})
		s.logg.Error(logCtx, "membership notification failed", err)
	}
}
