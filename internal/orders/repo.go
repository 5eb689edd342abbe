package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
)

// Repository persists orders in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs an orders repo.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Exists reports whether an order document is already stored under id.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByID loads an order, returning (nil, nil) when absent.
func (r *Repository) FindByID(ctx context.Context, id string) (*Order, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var order Order
	if err := doc.Decode(&order); err != nil {
		return nil, err
	}
	order.ID = doc.ID
	return &order, nil
}

// Save merge-writes the order at its provider order id.
func (r *Repository) Save(ctx context.Context, order *Order) error {
	if order == nil {
		return errors.New("order is required")
	}
	id := strings.TrimSpace(order.PolarOrderID)
	if id == "" {
		return errors.New("provider order id is required")
	}
	data, err := docstore.ToMap(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := r.store.Set(ctx, Collection, id, data, docstore.Merge()); err != nil {
		return err
	}
	order.ID = id
	return nil
}
