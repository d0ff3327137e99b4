package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/twissandra/internal/model"
)

// sqlStore keeps every column family in one table keyed by
// (family, row_key, name). name is binary so ordering is bytewise on both
// postgres and sqlite.
type sqlStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) ColumnStore { return &sqlStore{db: db} }

func (s *sqlStore) GetSlice(ctx context.Context, cf, row string, r SliceRange) ([]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	if r.Count <= 0 {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Where("family = ? AND row_key = ?", cf, row)
	order := "name ASC"
	if r.Reverse {
		order = "name DESC"
		if r.Start != "" {
			q = q.Where("name < ?", []byte(r.Start))
		}
	} else if r.Start != "" {
		q = q.Where("name > ?", []byte(r.Start))
	}
	var rows []model.Column
	if err := q.Order(order).Limit(r.Count).Find(&rows).Error; err != nil {
		return nil, wrap("sql get_slice", err)
	}
	cols := make([]Column, len(rows))
	for i, c := range rows {
		cols[i] = Column{Name: string(c.Name), Value: c.Value}
	}
	return cols, nil
}

func (s *sqlStore) MultiGet(ctx context.Context, cf string, rows []string) (map[string][]Column, error) {
	if err := checkFamily(cf); err != nil {
		return nil, err
	}
	res := make(map[string][]Column, len(rows))
	if len(rows) == 0 {
		return res, nil
	}
	var found []model.Column
	err := s.db.WithContext(ctx).
		Where("family = ? AND row_key IN ?", cf, rows).
		Order("row_key ASC, name ASC").
		Find(&found).Error
	if err != nil {
		return nil, wrap("sql multiget", err)
	}
	for _, c := range found {
		res[c.RowKey] = append(res[c.RowKey], Column{Name: string(c.Name), Value: c.Value})
	}
	return res, nil
}

func (s *sqlStore) Insert(ctx context.Context, cf, row string, cols ...Column) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	records := make([]model.Column, len(cols))
	for i, c := range cols {
		records[i] = model.Column{Family: cf, RowKey: row, Name: []byte(c.Name), Value: c.Value}
	}
	// 同名列覆盖写，与宽列存储语义一致
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "family"}, {Name: "row_key"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&records).Error
	return wrap("sql insert", err)
}

func (s *sqlStore) Delete(ctx context.Context, cf, row string, names ...string) error {
	if err := checkFamily(cf); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	keys := make([]interface{}, len(names))
	for i, n := range names {
		keys[i] = []byte(n)
	}
	err := s.db.WithContext(ctx).
		Where("family = ? AND row_key = ? AND name IN ?", cf, row, keys).
		Delete(&model.Column{}).Error
	return wrap("sql delete", err)
}

func (s *sqlStore) InitSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Column{}); err != nil {
		return fmt.Errorf("failed to migrate columns table: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
