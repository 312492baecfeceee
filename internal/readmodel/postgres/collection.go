package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/state"
)

// documentRow maps the documents table.
type documentRow struct {
	Collection string          `gorm:"column:collection;primaryKey"`
	ID         string          `gorm:"column:id;primaryKey"`
	Doc        json.RawMessage `gorm:"column:doc;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (documentRow) TableName() string { return "documents" }

// Collection is one named set of JSONB documents.
type Collection struct {
	db   *gorm.DB
	name string
	now  func() time.Time
}

var _ readmodel.Collection = (*Collection)(nil)

// NewCollection returns the gateway for collection name.
func NewCollection(db *gorm.DB, name string) *Collection {
	return &Collection{db: db, name: name, now: time.Now}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// FindByID returns the document stored for id.
func (c *Collection) FindByID(ctx context.Context, id string) (state.Object, bool, error) {
	return c.find(c.db.WithContext(ctx), id)
}

func (c *Collection) find(tx *gorm.DB, id string) (state.Object, bool, error) {
	var row documentRow
	err := tx.Where("collection = ? AND id = ?", c.name, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	doc, err := state.ObjectFromJSON(row.Doc)
	if err != nil {
		return nil, false, fmt.Errorf("find %s/%s: %w", c.name, id, err)
	}
	return doc, true, nil
}

// FindByIDAndUpdate merges fields into the existing document under a row
// lock. Missing documents are not created.
func (c *Collection) FindByIDAndUpdate(ctx context.Context, id string, fields state.Object) (state.Object, bool, error) {
	var (
		updated state.Object
		found   bool
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, ok, err := c.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil || !ok {
			return err
		}
		merged := state.Merge(current, fields)
		data, err := readmodel.MarshalDoc(merged)
		if err != nil {
			return err
		}
		res := tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", c.name, id).
			Updates(map[string]any{"doc": json.RawMessage(data), "updated_at": c.now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		updated, found = merged, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	return updated, found, nil
}

// Put replaces the whole document for id, creating it if needed.
func (c *Collection) Put(ctx context.Context, id string, doc state.Object) error {
	data, err := readmodel.MarshalDoc(doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.name, id, err)
	}
	now := c.now().UTC()
	row := documentRow{Collection: c.name, ID: id, Doc: data, CreatedAt: now, UpdatedAt: now}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"doc", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.name, id, err)
	}
	return nil
}

// Delete removes the document for id.
func (c *Collection) Delete(ctx context.Context, id string) error {
	err := c.db.WithContext(ctx).
		Where("collection = ? AND id = ?", c.name, id).
		Delete(&documentRow{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.name, id, err)
	}
	return nil
}

// AllIDs lists every id in the collection in ascending order.
func (c *Collection) AllIDs(ctx context.Context) ([]string, error) {
	return c.pluckIDs(c.db.WithContext(ctx).Where("collection = ?", c.name))
}

// IDsByFilter lists ids whose documents contain every filter entry.
func (c *Collection) IDsByFilter(ctx context.Context, filter readmodel.Filter) ([]string, error) {
	data, err := ContainmentJSON(filter)
	if err != nil {
		return nil, err
	}
	return c.pluckIDs(c.db.WithContext(ctx).
		Where("collection = ? AND doc @> ?::jsonb", c.name, string(data)))
}

// IDsByDateRange lists ids whose documents were last written within
// [start, end].
func (c *Collection) IDsByDateRange(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := readmodel.ValidateRange(start, end); err != nil {
		return nil, err
	}
	return c.pluckIDs(c.db.WithContext(ctx).
		Where("collection = ? AND updated_at BETWEEN ? AND ?", c.name, start.UTC(), end.UTC()))
}

func (c *Collection) pluckIDs(q *gorm.DB) ([]string, error) {
	ids := []string{}
	if err := q.Model(&documentRow{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list %s ids: %w", c.name, err)
	}
	return ids, nil
}

// ContainmentJSON renders filter as the JSONB document used with @>.
func ContainmentJSON(filter readmodel.Filter) ([]byte, error) {
	conds, err := filter.Conditions()
	if err != nil {
		return nil, err
	}
	obj := make(state.Object, len(conds))
	for _, cond := range conds {
		obj[cond.Field] = cond.Value
	}
	return state.MarshalCanonical(obj)
}
