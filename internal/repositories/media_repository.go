package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/imgvid/media-service/internal/models"
	"go.uber.org/zap"
)

// mysqlDuplicateEntry is the MySQL error number for a duplicate key
const mysqlDuplicateEntry = 1062

// mediaRepository implements media record repository operations
type mediaRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMediaRepository creates a new media repository
func NewMediaRepository(db *sql.DB, logger *zap.Logger) *mediaRepository {
	return &mediaRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new media record in a transaction.
// A failed insert leaves no row behind.
func (r *mediaRepository) Create(ctx context.Context, record *models.MediaRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", models.ErrStorage, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Error("failed to rollback media insert", zap.String("id", record.ID), zap.Error(rbErr))
		}
	}()

	query := `
		INSERT INTO files (file_id, path, type, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.Path,
		record.Kind,
		record.ContentType,
		record.Size,
		record.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("%w: %s", models.ErrConflict, record.ID)
		}
		return fmt.Errorf("%w: failed to create media record: %v", models.ErrStorage, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit media record: %v", models.ErrStorage, err)
	}

	return nil
}

// GetByID retrieves a media record by its identifier
func (r *mediaRepository) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	query := `
		SELECT path, type, content_type, size, created_at
		FROM files
		WHERE file_id = ?
		LIMIT 1
	`

	record := &models.MediaRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.Path,
		&record.Kind,
		&record.ContentType,
		&record.Size,
		&record.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get media record by id: %v", models.ErrStorage, err)
	}
	if !record.Kind.IsValid() {
		return nil, fmt.Errorf("%w: media record %s has unknown type %q", models.ErrStorage, id, record.Kind)
	}

	record.ID = id
	return record, nil
}
