package polar

import (
	"context"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/internal/orders"
	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

func (s *Service) handleOrderPaid(ctx context.Context, event *Event, p *OrderPaidPayload) error {
	email := p.Customer.Email
	if strings.TrimSpace(email) == "" {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMissingCustomerEmail, "order.paid requires customer email")
	}
	orderID := strings.TrimSpace(p.ID)
	if orderID == "" {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMissingOrderID, "order.paid requires order id")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":        orderID,
		"subscription_id": p.SubscriptionID,
		"amount":          orders.FormatAmount(p.Amount, p.Currency),
	})

	exists, err := s.orders.Exists(ctx, orderID)
	if err != nil {
		return dependencyError(err, "check existing order")
	}
	if exists {
		s.logg.Info(ctx, "order already recorded; skipping duplicate delivery")
		return nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return dependencyError(err, "find user by email")
	}
	if user == nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrUserNotFound, "no user for paying customer")
	}
	ctx = s.logg.WithUserID(ctx, user.ID)

	now := s.now().UTC()
	customerID := p.PolarCustomerID()
	fields := map[string]any{
		users.FieldActiveMember:       true,
		users.FieldSubscriptionStatus: string(enums.SubscriptionStatusActive),
		users.FieldLastOrderID:        orderID,
		users.FieldWebhookProcessedAt: now,
	}
	if customerID != "" {
		fields[users.FieldPolarCustomerID] = customerID
	}
	if p.SubscriptionID != "" {
		fields[users.FieldSubscriptionID] = p.SubscriptionID
	}
	if user.Analytics != nil {
		fields[users.FieldMonthsPaid] = docstore.Increment(1)
		fields[users.FieldLastSession] = now
	}
	if err := s.users.Update(ctx, user.ID, fields); err != nil {
		return dependencyError(err, "activate member")
	}

	order := &orders.Order{
		UserID:          user.ID,
		PolarOrderID:    orderID,
		PolarCustomerID: customerID,
		Status:          p.Status,
		Amount:          p.Amount,
		Currency:        p.Currency,
		SubscriptionID:  p.SubscriptionID,
		PaidAt:          instant.New(now),
		UpdatedAt:       instant.New(now),
		Processed:       true,
	}
	if createdAt, ok := instant.Parse(p.CreatedAt); ok {
		order.CreatedAt = instant.New(createdAt)
	} else {
		order.CreatedAt = instant.New(now)
	}
	if err := s.orders.Save(ctx, order); err != nil {
		s.logg.Error(ctx, "member activated but order write failed", err)
		return dependencyError(err, "save order")
	}

	active := true
	s.events.Notify(ctx, subscriptionevents.Notification{
		UserID:         user.ID,
		SubscriptionID: p.SubscriptionID,
		EventType:      string(enums.SubscriptionEventCreated),
		Status:         string(enums.SubscriptionStatusActive),
		ActiveMember:   &active,
		Source:         string(enums.EventSourceWebhook),
		OccurredAt:     instant.Time{Time: now},
	})
	s.logg.Info(ctx, "order paid; membership active")
	return nil
}
