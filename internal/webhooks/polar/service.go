package polar

import (
	"context"
	"time"

	"github.com/angelmondragon/yogaflow-backend/internal/orders"
	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
)

const defaultGracePeriod = 30 * 24 * time.Hour

// Outcome describes what happened to a delivery that did not fail.
type Outcome string

const (
	OutcomeProcessed Outcome = Outcome(metrics.OutcomeProcessed)
	OutcomeDuplicate Outcome = Outcome(metrics.OutcomeDuplicate)
	OutcomeIgnored   Outcome = Outcome(metrics.OutcomeIgnored)
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*users.User, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

type orderRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, order *orders.Order) error
}

type auditRecorder interface {
	Record(ctx context.Context, event *subscriptionevents.Event, activeMember *bool) error
	Notify(ctx context.Context, n subscriptionevents.Notification)
}

type deliveryLedger interface {
	IsProcessed(ctx context.Context, eventID, eventType string) bool
	MarkProcessed(ctx context.Context, eventID, eventType string, rawEvent []byte)
}

type ServiceParams struct {
	Users       userRepository
	Orders      orderRepository
	Events      auditRecorder
	Ledger      deliveryLedger
	Logger      *logger.Logger
	Metrics     *metrics.WebhookMetrics
	GracePeriod time.Duration
}

// Service reconciles member access state from billing webhook deliveries.
type Service struct {
	users       userRepository
	orders      orderRepository
	events      auditRecorder
	ledger      deliveryLedger
	logg        *logger.Logger
	metrics     *metrics.WebhookMetrics
	gracePeriod time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription events recorder required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	return &Service{
		users:       params.Users,
		orders:      params.Orders,
		events:      params.Events,
		ledger:      params.Ledger,
		logg:        logg,
		metrics:     params.Metrics,
		gracePeriod: grace,
		now:         time.Now,
	}, nil
}

// HandleDelivery decodes, deduplicates and routes a verified webhook body.
// A returned error means the provider should retry.
func (s *Service) HandleDelivery(ctx context.Context, deliveryID string, body []byte) (Outcome, error) {
	event, err := DecodeEvent(body, deliveryID)
	if err != nil {
		s.metrics.IncEvent("unknown", metrics.OutcomeFailed)
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body")
	}

	eventID := event.ID()
	ctx = s.logg.WithEvent(ctx, event.Type, eventID)

	if s.ledger.IsProcessed(ctx, eventID, event.Type) {
		s.logg.Info(ctx, "webhook already processed")
		s.metrics.IncEvent(event.Type, metrics.OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	start := time.Now()
	err = s.Route(ctx, event)
	s.metrics.ObserveDuration(event.Type, time.Since(start))
	if err != nil {
		s.logg.Error(ctx, "webhook handler failed", err)
		s.metrics.IncEvent(event.Type, metrics.OutcomeFailed)
		return "", err
	}

	s.ledger.MarkProcessed(ctx, eventID, event.Type, body)

	outcome := OutcomeProcessed
	if _, ok := event.Payload.(*UnhandledPayload); ok {
		outcome = OutcomeIgnored
	}
	s.metrics.IncEvent(event.Type, string(outcome))
	return outcome, nil
}

// Route dispatches a decoded event to its handler. Unknown kinds are logged
// and dropped.
func (s *Service) Route(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	switch p := event.Payload.(type) {
	case *OrderPaidPayload:
		return s.handleOrderPaid(ctx, event, p)
	case *SubscriptionCanceledPayload:
		return s.handleSubscriptionCanceled(ctx, event, p)
	case *SubscriptionUpdatedPayload:
		return s.handleSubscriptionUpdated(ctx, event, p)
	case *PaymentFailedPayload:
		return s.handlePaymentFailed(ctx, event, p)
	default:
		s.logg.Info(ctx, "ignoring unhandled webhook event")
		return nil
	}
}

func dependencyError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
