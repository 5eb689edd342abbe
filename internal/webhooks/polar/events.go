package polar

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Event types routed to a handler.
const (
	EventOrderPaid            = "order.paid"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionUpdated  = "subscription.updated"
	EventPaymentFailed        = "payment.failed"
)

var (
	validate = validator.New()

	errMissingData = errors.New("data is required")
)

// envelope only requires a type; data is checked per routed kind.
type envelope struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

// Payload is the decoded data of one event kind.
type Payload interface {
	EventType() string
}

// Customer is the billing customer embedded in order and payment payloads.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type OrderPaidPayload struct {
	ID             string   `json:"id"`
	Customer       Customer `json:"customer"`
	CustomerID     string   `json:"customer_id"`
	SubscriptionID string   `json:"subscription_id"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency"`
	Status         string   `json:"status"`
	CreatedAt      any      `json:"created_at"`
}

func (OrderPaidPayload) EventType() string { return EventOrderPaid }

// PolarCustomerID prefers the embedded customer over the top-level id.
func (p OrderPaidPayload) PolarCustomerID() string {
	if id := strings.TrimSpace(p.Customer.ID); id != "" {
		return id
	}
	return strings.TrimSpace(p.CustomerID)
}

type SubscriptionCanceledPayload struct {
	ID               string `json:"id"`
	CurrentPeriodEnd any    `json:"current_period_end"`
}

func (SubscriptionCanceledPayload) EventType() string { return EventSubscriptionCanceled }

type SubscriptionUpdatedPayload struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CanceledAt        any    `json:"canceled_at"`
	CurrentPeriodEnd  any    `json:"current_period_end"`
}

func (SubscriptionUpdatedPayload) EventType() string { return EventSubscriptionUpdated }

type PaymentFailedPayload struct {
	Customer       Customer `json:"customer"`
	SubscriptionID string   `json:"subscription_id"`
}

func (PaymentFailedPayload) EventType() string { return EventPaymentFailed }

// UnhandledPayload stands in for event kinds nothing listens to.
type UnhandledPayload struct {
	Type string
}

func (p UnhandledPayload) EventType() string { return p.Type }

// Event is a decoded webhook delivery.
type Event struct {
	Type       string
	DeliveryID string
	DataID     string
	Data       json.RawMessage
	Body       []byte
	Payload    Payload
}

// ID is the ledger identity of the delivery: the transport delivery id when
// present, else the payload id, else a digest of the body.
func (e *Event) ID() string {
	if id := strings.TrimSpace(e.DeliveryID); id != "" {
		return id
	}
	if id := strings.TrimSpace(e.DataID); id != "" {
		return id
	}
	sum := sha256.Sum256(e.Body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DecodeEvent parses a webhook body into a typed Event.
func DecodeEvent(body []byte, deliveryID string) (*Event, error) {
	var env envelope
	if err := decodeJSON(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	env.Type = strings.TrimSpace(env.Type)
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	payload, err := decodePayload(env.Type, env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrInvalidPayload, env.Type, err)
	}

	var ref struct {
		ID any `json:"id"`
	}
	if hasData(env.Data) {
		_ = json.Unmarshal(env.Data, &ref)
	}

	return &Event{
		Type:       env.Type,
		DeliveryID: deliveryID,
		DataID:     idString(ref.ID),
		Data:       env.Data,
		Body:       body,
		Payload:    payload,
	}, nil
}

func decodePayload(eventType string, data json.RawMessage) (Payload, error) {
	var p Payload
	switch eventType {
	case EventOrderPaid:
		p = &OrderPaidPayload{}
	case EventSubscriptionCanceled:
		p = &SubscriptionCanceledPayload{}
	case EventSubscriptionUpdated:
		p = &SubscriptionUpdatedPayload{}
	case EventPaymentFailed:
		p = &PaymentFailedPayload{}
	default:
		return &UnhandledPayload{Type: eventType}, nil
	}
	if !hasData(data) {
		return nil, errMissingData
	}
	if err := decodeJSON(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

func hasData(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func decodeJSON(raw []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dest)
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
