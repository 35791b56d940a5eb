package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"thumbforge-backend/internal/database"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

// ErrDuplicateThumbnail is returned by Insert when the id is already taken.
var ErrDuplicateThumbnail = errors.New("thumbnail already exists")

// DatabaseClient is the Postgres-backed record store.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// Migrate applies the Postgres schema migrations.
func (d *DatabaseClient) Migrate(ctx context.Context, logger zerolog.Logger) (int, error) {
	return database.NewMigrator(d.db, database.DialectPostgres, logger).Run(ctx)
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

func (d *DatabaseClient) Insert(ctx context.Context, t *models.Thumbnail) error {
	if err := t.CheckInvariants(); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO thumbnails (`+database.ThumbnailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.OwnerID, t.Title, t.Style, t.AspectRatio, t.ColorScheme, t.TextOverlay,
		t.PromptText, string(t.Status),
		database.NullIfEmpty(t.ResultContent), database.NullIfEmpty(t.ResultURL), database.NullIfEmpty(t.ErrorDetail),
		t.CreatedAt, t.UpdatedAt,
	)
	if isPgError(err, pgerrcode.UniqueViolation) {
		return fmt.Errorf("%w: %s", ErrDuplicateThumbnail, t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	return nil
}

func (d *DatabaseClient) GetByID(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+database.ThumbnailColumns+`
		FROM thumbnails
		WHERE id = $1
	`, id)
	t, err := database.ScanThumbnail(row, database.DialectPostgres)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thumbnail: %w", err)
	}
	return t, nil
}

// CompareAndUpdate locks the row, applies mutate and writes it back in one
// transaction. The status predicate on the update keeps it conditional.
func (d *DatabaseClient) CompareAndUpdate(ctx context.Context, id uuid.UUID, expected models.Status, mutate jobs.Mutator) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+database.ThumbnailColumns+`
		FROM thumbnails
		WHERE id = $1 AND status = $2
		FOR UPDATE
	`, id, string(expected))
	current, err := database.ScanThumbnail(row, database.DialectPostgres)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock thumbnail: %w", err)
	}

	if err := jobs.ApplyMutation(current, expected, mutate); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE thumbnails
		SET title = $3, style = $4, aspect_ratio = $5, color_scheme = $6, text_overlay = $7,
			prompt_text = $8, status = $9, result_content = $10, result_url = $11,
			error_detail = $12, updated_at = $13
		WHERE id = $1 AND status = $2
	`, id, string(expected),
		current.Title, current.Style, current.AspectRatio, current.ColorScheme, current.TextOverlay,
		current.PromptText, string(current.Status),
		database.NullIfEmpty(current.ResultContent), database.NullIfEmpty(current.ResultURL),
		database.NullIfEmpty(current.ErrorDetail), current.UpdatedAt,
	)
	if isPgError(err, pgerrcode.CheckViolation) {
		return false, &models.InvariantError{Field: "status", Reason: "rejected by database constraint"}
	}
	if err != nil {
		return false, fmt.Errorf("failed to update thumbnail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit thumbnail update: %w", err)
	}
	return true, nil
}

func (d *DatabaseClient) Delete(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	row := d.db.QueryRowContext(ctx, `
		DELETE FROM thumbnails
		WHERE id = $1
		RETURNING `+database.ThumbnailColumns, id)
	t, err := database.ScanThumbnail(row, database.DialectPostgres)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete thumbnail: %w", err)
	}
	return t, nil
}

// ListStale binds a NULL limit when limit is not positive, which Postgres
// treats as LIMIT ALL.
func (d *DatabaseClient) ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.Thumbnail, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+database.ThumbnailColumns+`
		FROM thumbnails
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, string(status), olderThan, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale thumbnails: %w", err)
	}
	return scanAll(rows)
}

func (d *DatabaseClient) ListByOwner(ctx context.Context, ownerID string) ([]models.Thumbnail, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+database.ThumbnailColumns+`
		FROM thumbnails
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]models.Thumbnail, error) {
	defer rows.Close()

	thumbs := make([]models.Thumbnail, 0)
	for rows.Next() {
		t, err := database.ScanThumbnail(rows, database.DialectPostgres)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thumbnail: %w", err)
		}
		thumbs = append(thumbs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thumbnails: %w", err)
	}
	return thumbs, nil
}

func isPgError(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}
