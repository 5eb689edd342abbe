package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

// Repository exposes user persistence over the document store. Lookups that
// find nothing return (nil, nil).
type Repository struct {
	store docstore.Store
	cache SessionCache
	logg  *logger.Logger
}

// NewRepository constructs a users repo. A nil cache disables session caching.
func NewRepository(store docstore.Store, cache SessionCache, logg *logger.Logger) *Repository {
	if cache == nil {
		cache = NoopSessionCache{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Repository{store: store, cache: cache, logg: logg}
}

// Create writes the user document under user.ID, or a generated id when empty.
func (r *Repository) Create(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", errors.New("user is required")
	}
	data, err := docstore.ToMap(user)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	delete(data, "id")
	if user.ID == "" {
		id, err := r.store.Add(ctx, Collection, data)
		if err != nil {
			return "", err
		}
		user.ID = id
		return id, nil
	}
	if err := r.store.Set(ctx, Collection, user.ID, data); err != nil {
		return "", err
	}
	return user.ID, nil
}

// FindByID loads a user, reading through the session cache.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	if cached, ok, err := r.cache.Get(ctx, id); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "cache_error", err.Error()), "session cache read failed")
	} else if ok {
		return cached, nil
	}

	doc, err := r.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user, err := decodeUser(*doc)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, user); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "cache_error", err.Error()), "session cache write failed")
	}
	return user, nil
}

// FindByEmail resolves a user by exact email match.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, FieldEmail, email)
}

// FindBySubscriptionID resolves a user by the billing provider subscription id.
func (r *Repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*User, error) {
	return r.findOne(ctx, FieldSubscriptionID, subscriptionID)
}

// ListLapsedCancellations returns up to limit canceled users whose
// subscriptionEndsAt is before now.
func (r *Repository) ListLapsedCancellations(ctx context.Context, now time.Time, limit int) ([]User, error) {
	filter := docstore.Where(FieldSubscriptionStatus, docstore.OpEqual, string(enums.SubscriptionStatusCanceled)).
		And(FieldSubscriptionEndsAt, docstore.OpLess, instant.Format(now))
	docs, err := r.store.Query(ctx, Collection, filter, limit)
	if err != nil {
		return nil, err
	}
	return decodeUsers(docs)
}

// Update applies field-level changes and drops the cached session copy.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := r.store.Update(ctx, Collection, id, fields); err != nil {
		return err
	}
	r.Invalidate(ctx, id)
	return nil
}

// Invalidate drops the cached session copy for id. Failures are logged.
func (r *Repository) Invalidate(ctx context.Context, id string) {
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"user_id": id, "cache_error": err.Error()}), "session cache invalidate failed")
	}
}

func (r *Repository) findOne(ctx context.Context, field, value string) (*User, error) {
	docs, err := r.store.Query(ctx, Collection, docstore.Where(field, docstore.OpEqual, value), 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return decodeUser(docs[0])
}

func decodeUsers(docs []docstore.Document) ([]User, error) {
	out := make([]User, 0, len(docs))
	for _, doc := range docs {
		user, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *user)
	}
	return out, nil
}

func decodeUser(doc docstore.Document) (*User, error) {
	var user User
	if err := doc.Decode(&user); err != nil {
		return nil, err
	}
	user.ID = doc.ID
	return &user, nil
}
