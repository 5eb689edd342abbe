package docstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/db"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSQLStore(db.FromConn(conn))
}

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		_, err := store.Get(context.Background(), "users", "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		err = store.Update(context.Background(), "users", "nope", map[string]any{"a": 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStoreSetReplaceAndMerge(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "orders", "ord_1", map[string]any{
			"amount":   1200,
			"currency": "USD",
			"customer": map[string]any{"email": "a@b.com", "id": "cus_1"},
		}))
		require.NoError(t, store.Set(ctx, "orders", "ord_1", map[string]any{
			"processed": true,
			"customer":  map[string]any{"id": "cus_2"},
		}, Merge()))

		doc, err := store.Get(ctx, "orders", "ord_1")
		require.NoError(t, err)
		assert.Equal(t, float64(1200), doc.Data["amount"])
		assert.Equal(t, true, doc.Data["processed"])
		assert.Equal(t, map[string]any{"email": "a@b.com", "id": "cus_2"}, doc.Data["customer"])

		require.NoError(t, store.Set(ctx, "orders", "ord_1", map[string]any{"processed": false}))
		doc, err = store.Get(ctx, "orders", "ord_1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"processed": false}, doc.Data)
	})
}

func TestStoreUpdateDottedPathsAndTransforms(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, store.Set(ctx, "users", "u1", map[string]any{
			"email":     "a@b.com",
			"analytics": map[string]any{"monthsPaid": 2, "minutesWatched": 40},
			"tags":      []any{"yin"},
		}))

		require.NoError(t, store.Update(ctx, "users", "u1", map[string]any{
			"analytics.monthsPaid":  Increment(1),
			"analytics.lastSession": at,
			"tags":                  ArrayUnion("yin", "vinyasa"),
			"counter":               Increment(3),
		}))

		doc, err := store.Get(ctx, "users", "u1")
		require.NoError(t, err)
		analytics := doc.Data["analytics"].(map[string]any)
		assert.Equal(t, float64(3), analytics["monthsPaid"])
		assert.Equal(t, float64(40), analytics["minutesWatched"])
		assert.Equal(t, instant.Format(at), analytics["lastSession"])
		assert.Equal(t, []any{"yin", "vinyasa"}, doc.Data["tags"])
		assert.Equal(t, float64(3), doc.Data["counter"])
		assert.Equal(t, "a@b.com", doc.Data["email"])
	})
}

func TestStoreQueryEqualityAndRange(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		for i, email := range []string{"a@b.com", "c@d.com", "a@b.com"} {
			require.NoError(t, store.Set(ctx, "users", fmt.Sprintf("u%d", i), map[string]any{
				"email":     email,
				"expiresAt": base.Add(time.Duration(i) * time.Hour),
				"billing":   map[string]any{"status": "canceled"},
			}))
		}

		docs, err := store.Query(ctx, "users", Where("email", OpEqual, "a@b.com"), 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "u0", docs[0].ID)
		assert.Equal(t, "u2", docs[1].ID)

		docs, err = store.Query(ctx, "users", Where("email", OpEqual, "a@b.com"), 1)
		require.NoError(t, err)
		require.Len(t, docs, 1)

		docs, err = store.Query(ctx, "users", Where("expiresAt", OpLess, base.Add(90*time.Minute)), 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)

		docs, err = store.Query(ctx, "users", Where("billing.status", OpEqual, "canceled"), 0)
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		docs, err = store.Query(ctx, "users", Where("email", OpEqual, "zzz"), 0)
		require.NoError(t, err)
		assert.Empty(t, docs)

		docs, err = store.Query(ctx, "users", Where("email", OpEqual, "a@b.com").And("expiresAt", OpGreater, base), 0)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "u2", docs[0].ID)
	})
}

func TestStoreQueryRejectsInvalidFilter(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		_, err := store.Query(context.Background(), "users", Where("email'; drop", OpEqual, "x"), 0)
		assert.ErrorIs(t, err, ErrInvalidFilter)

		_, err = store.Query(context.Background(), "users", Where("email", Op("!="), "x"), 0)
		assert.ErrorIs(t, err, ErrInvalidFilter)

		_, err = store.Query(context.Background(), "users", Where("email", OpEqual, "x").And("a b", OpEqual, "y"), 0)
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestStoreAddAndDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		id, err := store.Add(ctx, "subscription_events", map[string]any{"eventType": "canceled"})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := store.Get(ctx, "subscription_events", id)
		require.NoError(t, err)
		assert.Equal(t, "canceled", doc.Data["eventType"])

		require.NoError(t, store.Delete(ctx, "subscription_events", id))
		_, err = store.Get(ctx, "subscription_events", id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentDecode(t *testing.T) {
	type order struct {
		Amount    int64  `json:"amount"`
		Processed bool   `json:"processed"`
		Currency  string `json:"currency"`
	}
	doc := Document{ID: "ord_1", Data: map[string]any{"amount": float64(1200), "processed": true, "currency": "USD"}}
	var got order
	require.NoError(t, doc.Decode(&got))
	assert.Equal(t, order{Amount: 1200, Processed: true, Currency: "USD"}, got)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "users", "u1", map[string]any{"analytics": map[string]any{"monthsPaid": 1}}))

	doc, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	doc.Data["analytics"].(map[string]any)["monthsPaid"] = float64(99)

	again, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), again.Data["analytics"].(map[string]any)["monthsPaid"])
	assert.Equal(t, 1, store.Count("users"))
}
