package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type metadataStore struct {
	db          *gorm.DB
	logger      *slog.Logger
	autoMigrate bool
}

var _ storage.MetadataStore = (*metadataStore)(nil)

// Option configures the metadata store.
type Option func(*metadataStore) error

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *metadataStore) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = l
		return nil
	}
}

// WithAutoMigrate creates or alters the legal_documents table on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(s *metadataStore) error {
		s.autoMigrate = enabled
		return nil
	}
}

// Open connects to PostgreSQL using dsn.
func Open(dsn string, opts ...Option) (storage.MetadataStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return New(db, opts...)
}

// New wraps an open gorm connection. Any gorm dialect works; tests use SQLite.
func New(db *gorm.DB, opts ...Option) (storage.MetadataStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	s := &metadataStore{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.autoMigrate {
		if err := db.AutoMigrate(&documentRow{}); err != nil {
			return nil, fmt.Errorf("schema migration failed: %w", err)
		}
		s.logger.Debug("legal_documents schema migrated")
	}
	return s, nil
}

func (s *metadataStore) Create(ctx context.Context, record *core.DocumentRecord) error {
	if err := core.ValidateDocumentRecord(record); err != nil {
		return err
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&documentRow{}).
			Where("id = ? OR file_path = ?", record.ID, record.FilePath).
			Count(&count).Error
		if err != nil {
			return translate(err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, record.FilePath)
		}
		return translate(tx.Create(toRow(record)).Error)
	})
}

func (s *metadataStore) Get(ctx context.Context, id string) (*core.DocumentRecord, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *metadataStore) GetByPath(ctx context.Context, filePath string) (*core.DocumentRecord, error) {
	return s.first(ctx, "file_path = ?", filePath)
}

func (s *metadataStore) FindByNormalizedName(ctx context.Context, normalized string) (*core.DocumentRecord, error) {
	return s.first(ctx, "normalized_name = ?", normalized)
}

func (s *metadataStore) first(ctx context.Context, query string, arg any) (*core.DocumentRecord, error) {
	var row documentRow
	err := s.db.WithContext(ctx).Where(query, arg).Order("created_at, id").First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return row.toRecord(), nil
}

// Update writes every column except id and created_at. The status guard is
// part of the WHERE clause so a concurrent transition cannot slip in between
// the check and the write.
func (s *metadataStore) Update(ctx context.Context, record *core.DocumentRecord) error {
	if err := core.ValidateDocumentRecord(record); err != nil {
		return err
	}
	record.UpdatedAt = time.Now().UTC()
	row := toRow(record)

	res := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("id = ? AND status IN ?", record.ID, sourcesOf(record.Status)).
		Select("*").Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, record.ID, record.Status)
	}
	return nil
}

func (s *metadataStore) UpdateStatus(ctx context.Context, id string, status core.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w %q", core.ErrInvalidStatus, status)
	}
	res := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("id = ? AND status IN ?", id, sourcesOf(status)).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.explainMiss(ctx, id, status)
	}
	return nil
}

// explainMiss tells a missing row apart from a rejected transition.
func (s *metadataStore) explainMiss(ctx context.Context, id string, to core.Status) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return core.ValidateTransition(existing.Status, to)
}

func (s *metadataStore) List(ctx context.Context, offset, limit int) ([]*core.DocumentRecord, error) {
	if offset < 0 || limit < 0 {
		return nil, storage.ErrInvalidQuery
	}
	q := s.db.WithContext(ctx).Order("created_at, id").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []documentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return toRecords(rows), nil
}

func (s *metadataStore) ListByStatus(ctx context.Context, status core.Status) ([]*core.DocumentRecord, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	return toRecords(rows), nil
}

func (s *metadataStore) Paths(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		ID       string
		FilePath string
	}
	err := s.db.WithContext(ctx).Model(&documentRow{}).Select("id", "file_path").Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	paths := make(map[string]string, len(rows))
	for _, r := range rows {
		paths[r.FilePath] = r.ID
	}
	return paths, nil
}

func (s *metadataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sourcesOf lists the statuses a record may be in to move to status.
func sourcesOf(to core.Status) []string {
	var from []string
	for _, s := range []core.Status{core.StatusProcessing, core.StatusIndexed, core.StatusFailed} {
		if core.CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}

func toRecords(rows []documentRow) []*core.DocumentRecord {
	out := make([]*core.DocumentRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}
