package polar

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/yogaflow-backend/internal/orders"
	"github.com/angelmondragon/yogaflow-backend/internal/subscriptionevents"
	"github.com/angelmondragon/yogaflow-backend/internal/users"
	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []subscriptionevents.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n subscriptionevents.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

type harness struct {
	store    *docstore.MemoryStore
	users    *users.Repository
	orders   *orders.Repository
	events   *subscriptionevents.Repository
	ledger   *Ledger
	notifier *recordingNotifier
	reg      *prometheus.Registry
	svc      *Service
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	t.Helper()
	store := docstore.NewMemoryStore()
	h := &harness{
		store:    store,
		users:    users.NewRepository(store, nil, nil),
		orders:   orders.NewRepository(store),
		events:   subscriptionevents.NewRepository(store),
		notifier: &recordingNotifier{},
		reg:      prometheus.NewRegistry(),
	}
	recorder, err := subscriptionevents.NewService(subscriptionevents.ServiceParams{Repository: h.events, Notifier: h.notifier})
	require.NoError(t, err)
	h.ledger, err = NewLedger(store, 0, nil)
	require.NoError(t, err)
	h.svc, err = NewService(ServiceParams{
		Users:       h.users,
		Orders:      h.orders,
		Events:      recorder,
		Ledger:      h.ledger,
		Metrics:     metrics.NewWebhookMetrics(h.reg),
		GracePeriod: grace,
	})
	require.NoError(t, err)
	h.svc.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) seed(t *testing.T, u *users.User) {
	t.Helper()
	_, err := h.users.Create(context.Background(), u)
	require.NoError(t, err)
}

func (h *harness) user(t *testing.T, id string) *users.User {
	t.Helper()
	u, err := h.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (h *harness) audit(t *testing.T, userID string) []subscriptionevents.Event {
	t.Helper()
	rows, err := h.events.ListByUser(context.Background(), userID, 50)
	require.NoError(t, err)
	return rows
}

func (h *harness) counter(t *testing.T, eventType, outcome string) float64 {
	t.Helper()
	families, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "webhook_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label(m, "event_type") == eventType && label(m, "outcome") == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func body(t *testing.T, eventType string, data map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	require.NoError(t, err)
	return raw
}

func orderPaidBody(t *testing.T) []byte {
	return body(t, EventOrderPaid, map[string]any{
		"id":              "ord_1",
		"customer":        map[string]any{"id": "cus_1", "email": "a@b.com"},
		"subscription_id": "sub_1",
		"amount":          1200,
		"currency":        "USD",
		"status":          "paid",
		"created_at":      "2026-05-10T08:29:00Z",
	})
}

func TestOrderPaidActivatesMemberEndToEnd(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", Analytics: &users.Analytics{MonthsPaid: 2}})

	outcome, err := h.svc.HandleDelivery(ctx, "wh_1", orderPaidBody(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember)
	assert.Equal(t, enums.SubscriptionStatusActive, u.SubscriptionStatus)
	assert.Equal(t, "ord_1", u.LastOrderID)
	assert.Equal(t, "sub_1", u.SubscriptionID)
	assert.Equal(t, "cus_1", u.PolarCustomerID)
	assert.Equal(t, float64(3), u.Analytics.MonthsPaid)
	require.True(t, u.Analytics.LastSession.Valid())
	assert.True(t, u.Analytics.LastSession.Equal(fixedNow))
	require.True(t, u.WebhookProcessedAt.Valid())

	order, err := h.orders.FindByID(ctx, "ord_1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, int64(1200), order.Amount)
	assert.Equal(t, "USD", order.Currency)
	assert.True(t, order.Processed)
	assert.True(t, order.PaidAt.Equal(fixedNow))
	assert.True(t, order.CreatedAt.Equal(time.Date(2026, 5, 10, 8, 29, 0, 0, time.UTC)))

	assert.True(t, h.ledger.IsProcessed(ctx, "wh_1", EventOrderPaid))
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, string(enums.SubscriptionEventCreated), h.notifier.notes[0].EventType)
	assert.Equal(t, float64(1), h.counter(t, EventOrderPaid, metrics.OutcomeProcessed))
}

func TestDuplicateDeliveryIsSkippedByLedger(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", Analytics: &users.Analytics{}})

	_, err := h.svc.HandleDelivery(ctx, "wh_1", orderPaidBody(t))
	require.NoError(t, err)
	outcome, err := h.svc.HandleDelivery(ctx, "wh_1", orderPaidBody(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, float64(1), h.user(t, "u1").Analytics.MonthsPaid)
	assert.Equal(t, float64(1), h.counter(t, EventOrderPaid, metrics.OutcomeDuplicate))
}

func TestRedeliveredOrderIsAppliedOnce(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", Analytics: &users.Analytics{}})

	for _, deliveryID := range []string{"wh_1", "wh_2", "wh_3"} {
		outcome, err := h.svc.HandleDelivery(ctx, deliveryID, orderPaidBody(t))
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	}
	assert.Equal(t, float64(1), h.user(t, "u1").Analytics.MonthsPaid)
	assert.Equal(t, 1, h.store.Count(orders.Collection))
	assert.Len(t, h.notifier.notes, 1)
}

func TestOrderPaidWithoutAnalyticsLeavesItAbsent(t *testing.T) {
	h := newHarness(t, 0)
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com"})

	_, err := h.svc.HandleDelivery(context.Background(), "wh_1", orderPaidBody(t))
	require.NoError(t, err)
	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember)
	assert.Nil(t, u.Analytics)
}

func TestOrderPaidFailuresAreRetryable(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	noEmail := body(t, EventOrderPaid, map[string]any{"id": "ord_1", "customer": map[string]any{}})
	_, err := h.svc.HandleDelivery(ctx, "wh_1", noEmail)
	require.ErrorIs(t, err, ErrMissingCustomerEmail)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.False(t, h.ledger.IsProcessed(ctx, "wh_1", EventOrderPaid))

	noOrderID := body(t, EventOrderPaid, map[string]any{"customer": map[string]any{"email": "a@b.com"}})
	_, err = h.svc.HandleDelivery(ctx, "wh_2", noOrderID)
	require.ErrorIs(t, err, ErrMissingOrderID)

	_, err = h.svc.HandleDelivery(ctx, "wh_3", orderPaidBody(t))
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 0, h.store.Count(orders.Collection))
	assert.False(t, h.ledger.IsProcessed(ctx, "wh_3", EventOrderPaid))
	assert.Equal(t, float64(3), h.counter(t, EventOrderPaid, metrics.OutcomeFailed))
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.svc.HandleDelivery(context.Background(), "wh_1", []byte(`{"type":`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSubscriptionCanceledKeepsAccessUntilPeriodEnd(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true, SubscriptionStatus: enums.SubscriptionStatusActive, WillRenew: true})
	periodEnd := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := h.svc.HandleDelivery(ctx, "wh_c", body(t, EventSubscriptionCanceled, map[string]any{
		"id":                 "sub_1",
		"current_period_end": periodEnd.Unix(),
	}))
	require.NoError(t, err)

	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember)
	assert.False(t, u.WillRenew)
	assert.Equal(t, enums.SubscriptionStatusCanceled, u.SubscriptionStatus)
	require.True(t, u.SubscriptionEndsAt.Valid())
	assert.True(t, u.SubscriptionEndsAt.Equal(periodEnd))
	assert.True(t, u.CanceledAt.Equal(fixedNow))

	rows := h.audit(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, enums.SubscriptionEventCanceled, rows[0].EventType)
	assert.Equal(t, enums.EventSourceWebhook, rows[0].Source)
	assert.True(t, rows[0].AccessEndsAt.Equal(periodEnd))
}

func TestSubscriptionCanceledFallsBackToGracePeriod(t *testing.T) {
	grace := 7 * 24 * time.Hour
	for name, raw := range map[string]any{
		"missing": nil,
		"nan":     math.NaN(),
		"garbage": "whenever",
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, grace)
			ctx := context.Background()
			h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true})

			event := &Event{Type: EventSubscriptionCanceled, Payload: &SubscriptionCanceledPayload{ID: "sub_1", CurrentPeriodEnd: raw}}
			require.NoError(t, h.svc.Route(ctx, event))

			u := h.user(t, "u1")
			require.True(t, u.SubscriptionEndsAt.Valid())
			assert.True(t, u.SubscriptionEndsAt.Equal(fixedNow.Add(grace)))
		})
	}
}

func TestSubscriptionCanceledRequiresKnownSubscription(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	err := h.svc.Route(ctx, &Event{Type: EventSubscriptionCanceled, Payload: &SubscriptionCanceledPayload{}})
	require.ErrorIs(t, err, ErrMissingSubscriptionID)

	err = h.svc.Route(ctx, &Event{Type: EventSubscriptionCanceled, Payload: &SubscriptionCanceledPayload{ID: "sub_missing"}})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSubscriptionUpdatedScheduledCancellation(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true, SubscriptionStatus: enums.SubscriptionStatusActive, WillRenew: true})
	canceledAt := time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC)

	_, err := h.svc.HandleDelivery(ctx, "wh_u", body(t, EventSubscriptionUpdated, map[string]any{
		"id":                   "sub_1",
		"status":               "active",
		"cancel_at_period_end": true,
		"canceled_at":          canceledAt.Format(time.RFC3339),
		"current_period_end":   periodEnd.Unix(),
	}))
	require.NoError(t, err)

	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember, "scheduled cancellation keeps access")
	assert.False(t, u.WillRenew)
	assert.Equal(t, enums.SubscriptionStatusCanceled, u.SubscriptionStatus)
	assert.True(t, u.CanceledAt.Equal(canceledAt))
	assert.True(t, u.SubscriptionEndsAt.Equal(periodEnd))
	assert.True(t, u.UpdatedAt.Equal(fixedNow))

	rows := h.audit(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, enums.SubscriptionEventUpdated, rows[0].EventType)
	require.NotNil(t, rows[0].CancelAtPeriodEnd)
	assert.True(t, *rows[0].CancelAtPeriodEnd)
}

func TestSubscriptionUpdatedStatusSync(t *testing.T) {
	cases := []struct {
		status     string
		wantActive bool
		wantRenew  bool
	}{
		{"past_due", false, true},
		{"expired", false, true},
		{"canceled", false, false},
		{"active", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			h := newHarness(t, 0)
			h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: !tc.wantActive, WillRenew: true})

			_, err := h.svc.HandleDelivery(context.Background(), "wh_"+tc.status, body(t, EventSubscriptionUpdated, map[string]any{
				"id":     "sub_1",
				"status": tc.status,
			}))
			require.NoError(t, err)

			u := h.user(t, "u1")
			assert.Equal(t, tc.wantActive, u.ActiveMember)
			assert.Equal(t, tc.wantRenew, u.WillRenew)
			assert.Equal(t, enums.SubscriptionStatus(tc.status), u.SubscriptionStatus)
		})
	}
}

func TestSubscriptionUpdatedCancelFlagWithoutTimestampSyncsStatus(t *testing.T) {
	h := newHarness(t, 0)
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true, SubscriptionStatus: enums.SubscriptionStatusActive})

	_, err := h.svc.HandleDelivery(context.Background(), "wh_u", body(t, EventSubscriptionUpdated, map[string]any{
		"id":                   "sub_1",
		"status":               "past_due",
		"cancel_at_period_end": true,
	}))
	require.NoError(t, err)
	u := h.user(t, "u1")
	assert.Equal(t, enums.SubscriptionStatusPastDue, u.SubscriptionStatus)
	assert.False(t, u.ActiveMember)
	assert.Nil(t, u.CanceledAt)
}

func TestSubscriptionUpdatedUnknownSubscriptionIsNoop(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	outcome, err := h.svc.HandleDelivery(ctx, "wh_u", body(t, EventSubscriptionUpdated, map[string]any{"id": "sub_x", "status": "active"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 0, h.store.Count(subscriptionevents.Collection))

	outcome, err = h.svc.HandleDelivery(ctx, "wh_v", body(t, EventSubscriptionUpdated, map[string]any{"status": "active"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
}

func TestPaymentFailedFlagsMemberWithoutRevoking(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true, SubscriptionStatus: enums.SubscriptionStatusActive})

	_, err := h.svc.HandleDelivery(ctx, "wh_p", body(t, EventPaymentFailed, map[string]any{"subscription_id": "sub_1"}))
	require.NoError(t, err)

	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember)
	assert.True(t, u.LastPaymentFailed)
	assert.True(t, u.LastPaymentFailedAt.Equal(fixedNow))
	assert.Equal(t, enums.SubscriptionStatusActive, u.SubscriptionStatus)

	rows := h.audit(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, enums.SubscriptionEventPaymentFailed, rows[0].EventType)
}

func TestPaymentFailedFallsBackToEmail(t *testing.T) {
	h := newHarness(t, 0)
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1"})

	_, err := h.svc.HandleDelivery(context.Background(), "wh_p", body(t, EventPaymentFailed, map[string]any{"customer": map[string]any{"email": "a@b.com"}}))
	require.NoError(t, err)
	assert.True(t, h.user(t, "u1").LastPaymentFailed)
	rows := h.audit(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_1", rows[0].SubscriptionID)
}

func TestPaymentFailedUnknownSubscriptionFallsBackToEmail(t *testing.T) {
	h := newHarness(t, 0)
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_old", ActiveMember: true})

	outcome, err := h.svc.HandleDelivery(context.Background(), "wh_p", body(t, EventPaymentFailed, map[string]any{
		"subscription_id": "sub_new",
		"customer":        map[string]any{"email": "a@b.com"},
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	u := h.user(t, "u1")
	assert.True(t, u.LastPaymentFailed)
	assert.Equal(t, "sub_old", u.SubscriptionID)
	rows := h.audit(t, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_new", rows[0].SubscriptionID)
}

func TestPaymentFailedUnknownCustomerIsNoop(t *testing.T) {
	h := newHarness(t, 0)
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1"})

	_, err := h.svc.HandleDelivery(context.Background(), "wh_p", body(t, EventPaymentFailed, map[string]any{
		"subscription_id": "sub_new",
		"customer":        map[string]any{"email": "other@b.com"},
	}))
	require.NoError(t, err)
	assert.False(t, h.user(t, "u1").LastPaymentFailed)
	assert.Empty(t, h.audit(t, "u1"))
}

func TestUnroutedEventWithoutDataIsIgnored(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	outcome, err := h.svc.HandleDelivery(ctx, "wh_nd", []byte(`{"type":"checkout.created"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.True(t, h.ledger.IsProcessed(ctx, "wh_nd", "checkout.created"))
}

func TestUnhandledEventIsIgnoredButRecorded(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	outcome, err := h.svc.HandleDelivery(ctx, "wh_x", body(t, "checkout.created", map[string]any{"id": "chk_1"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.True(t, h.ledger.IsProcessed(ctx, "wh_x", "checkout.created"))
	assert.Equal(t, float64(1), h.counter(t, metrics.EventTypeOther, metrics.OutcomeIgnored))
}

func TestCanceledWithPastPeriodEndLeavesRevocationToChecker(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	h.seed(t, &users.User{ID: "u1", Email: "a@b.com", SubscriptionID: "sub_1", ActiveMember: true})

	end := fixedNow.Add(-time.Hour)
	require.NoError(t, h.svc.Route(ctx, &Event{Type: EventSubscriptionCanceled, Payload: &SubscriptionCanceledPayload{ID: "sub_1", CurrentPeriodEnd: instant.Format(end)}}))

	u := h.user(t, "u1")
	assert.True(t, u.ActiveMember, "the handler never revokes access itself")
	assert.True(t, u.SubscriptionEndsAt.Equal(end))
}
