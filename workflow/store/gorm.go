package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/flowstudio/workflow"
)

// workflowRecord is the SQL row of a stored definition.
type workflowRecord struct {
	ID        string    `gorm:"primaryKey;size:128"`
	Name      string    `gorm:"size:255;index"`
	Version   string    `gorm:"size:64"`
	NodeCount int       `gorm:"not null;default:0"`
	EdgeCount int       `gorm:"not null;default:0"`
	Document  string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime:false"`
}

// TableName implements gorm's tabler.
func (workflowRecord) TableName() string { return "workflows" }

// GormStore stores definitions in a SQL table through GORM. It works with
// any dialector the service opens (postgres, mysql, sqlite).
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates the store and migrates its table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&workflowRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate workflows table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "graph_store"), zap.String("backend", "sql")),
	}, nil
}

// Save implements GraphStore.
func (s *GormStore) Save(ctx context.Context, def *workflow.Definition) error {
	stored, err := prepare(def)
	if err != nil {
		return err
	}
	data, err := encode(stored)
	if err != nil {
		return err
	}
	sum := summarize(stored)
	rec := workflowRecord{
		ID:        stored.ID,
		Name:      sum.Name,
		Version:   sum.Version,
		NodeCount: sum.NodeCount,
		EdgeCount: sum.EdgeCount,
		Document:  string(data),
		CreatedAt: stored.Metadata.CreatedAt,
		UpdatedAt: stored.Metadata.UpdatedAt,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "version", "node_count", "edge_count", "document", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		s.logger.Error("save workflow failed", zap.String("workflow_id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to save workflow %s: %w", rec.ID, err)
	}
	return nil
}

// Get implements GraphStore.
func (s *GormStore) Get(ctx context.Context, id string) (*workflow.Definition, error) {
	var rec workflowRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return decode([]byte(rec.Document))
}

// List implements GraphStore.
func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	q := s.db.WithContext(ctx).
		Model(&workflowRecord{}).
		Select("id", "name", "version", "node_count", "edge_count", "updated_at").
		Order("updated_at DESC").
		Order("id ASC")
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var recs []workflowRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{
			ID:        rec.ID,
			Name:      rec.Name,
			Version:   rec.Version,
			NodeCount: rec.NodeCount,
			EdgeCount: rec.EdgeCount,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// Delete implements GraphStore.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&workflowRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements GraphStore.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements GraphStore. The database handle belongs to the caller
// and stays open.
func (s *GormStore) Close() error {
	return nil
}
