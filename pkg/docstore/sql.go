package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const documentsTable = "documents"

// documentRecord is one row of the shared documents table.
type documentRecord struct {
	Collection string         `gorm:"primaryKey;size:128"`
	ID         string         `gorm:"primaryKey;size:255"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string { return documentsTable }

type txRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SQLStore keeps every collection in a single JSON documents table.
// Writes lock the row for the read-modify-write on Postgres; SQLite
// serializes writers on its own.
type SQLStore struct {
	db      txRunner
	dialect string
	now     func() time.Time
}

// NewSQLStore builds a Store on top of the shared database client.
func NewSQLStore(db txRunner) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: db.DB().Dialector.Name(),
		now:     time.Now,
	}
}

// AutoMigrate creates the documents table for SQLite runs. Postgres uses the
// goose migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&documentRecord{})
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var rec documentRecord
	err := s.db.DB().WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	data, err := decodeData(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &Document{ID: rec.ID, Data: data}, nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	q := s.db.DB().WithContext(ctx).Where("collection = ?", collection)
	for _, c := range filter.clauses() {
		value, err := normalizeValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: sql filters compare string values, got %T", ErrInvalidFilter, value)
		}
		op := string(c.Op)
		if c.Op == OpEqual {
			op = "="
		}
		q = q.Where(fmt.Sprintf("%s %s ?", s.jsonPath(c.Field), op), str)
	}
	q = q.Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []documentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query %s where %s %s: %w", collection, filter.Field, filter.Op, err)
	}
	out := make([]Document, 0, len(recs))
	for _, rec := range recs {
		data, err := decodeData(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		out = append(out, Document{ID: rec.ID, Data: data})
	}
	return out, nil
}

func (s *SQLStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	if id == "" {
		return fmt.Errorf("docstore: id is required")
	}
	normalized, err := normalizeFields(data)
	if err != nil {
		return err
	}
	options := resolveSetOptions(opts)

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		target := map[string]any{}
		if options.merge {
			existing, err := s.lockedData(tx, collection, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if existing != nil {
				target = existing
			}
		}
		mergeInto(target, normalized)
		raw, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		now := s.now().UTC()
		rec := documentRecord{
			Collection: collection,
			ID:         id,
			Data:       datatypes.JSON(raw),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := validateUpdatePaths(fields); err != nil {
		return err
	}
	normalized, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		target, err := s.lockedData(tx, collection, id)
		if err != nil {
			return err
		}
		applyUpdate(target, normalized)
		raw, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		err = tx.Model(&documentRecord{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{
				"data":       datatypes.JSON(raw),
				"updated_at": s.now().UTC(),
			}).Error
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.DB().WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) lockedData(tx *gorm.DB, collection, id string) (map[string]any, error) {
	q := tx.Where("collection = ? AND id = ?", collection, id)
	if s.dialect == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec documentRecord
	err := q.Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	return decodeData(rec.Data)
}

// jsonPath renders a validated dotted field as a text-valued JSON expression.
func (s *SQLStore) jsonPath(field string) string {
	parts := strings.Split(field, ".")
	if s.dialect == "postgres" {
		return fmt.Sprintf("data #>> '{%s}'", strings.Join(parts, ","))
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", strings.Join(parts, "."))
}

func decodeData(raw datatypes.JSON) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return out, nil
}
