package subscriptionevents

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
)

// Repository appends audit rows to the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs an audit log repo.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Append stores the event under a generated id.
func (r *Repository) Append(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", errors.New("event is required")
	}
	if !event.EventType.IsValid() {
		return "", fmt.Errorf("invalid subscription event type %q", event.EventType)
	}
	data, err := docstore.ToMap(event)
	if err != nil {
		return "", fmt.Errorf("encode subscription event: %w", err)
	}
	id, err := r.store.Add(ctx, Collection, data)
	if err != nil {
		return "", err
	}
	event.ID = id
	return id, nil
}

// ListByUser returns up to limit audit rows for a user.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	docs, err := r.store.Query(ctx, Collection, docstore.Where("userId", docstore.OpEqual, userID), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(docs))
	for _, doc := range docs {
		var event Event
		if err := doc.Decode(&event); err != nil {
			return nil, err
		}
		event.ID = doc.ID
		out = append(out, event)
	}
	return out, nil
}
