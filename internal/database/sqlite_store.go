package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists records in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens path, applies pragmas and runs the SQLite migrations.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	// Pragmas go in the DSN so every pooled connection gets them. Immediate
	// transactions take the write lock up front, which serializes CompareAndUpdate.
	dsn := path + "?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := NewMigrator(db, DialectSQLite, logger).Run(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Insert(ctx context.Context, t *models.Thumbnail) error {
	if err := t.CheckInvariants(); err != nil {
		return err
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO thumbnails (`+ThumbnailColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID.String(), t.OwnerID, t.Title, t.Style, t.AspectRatio, t.ColorScheme,
			t.TextOverlay, t.PromptText, string(t.Status),
			NullIfEmpty(t.ResultContent), NullIfEmpty(t.ResultURL), NullIfEmpty(t.ErrorDetail),
			t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert thumbnail: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ThumbnailColumns+` FROM thumbnails WHERE id = ?`, id.String())
	t, err := ScanThumbnail(row, DialectSQLite)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thumbnail: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) CompareAndUpdate(ctx context.Context, id uuid.UUID, expected models.Status, mutate jobs.Mutator) (bool, error) {
	var updated bool
	err := retryOnBusy(ctx, func() error {
		var err error
		updated, err = s.compareAndUpdate(ctx, id, expected, mutate)
		return err
	})
	return updated, err
}

func (s *SQLiteStore) compareAndUpdate(ctx context.Context, id uuid.UUID, expected models.Status, mutate jobs.Mutator) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+ThumbnailColumns+` FROM thumbnails WHERE id = ? AND status = ?`,
		id.String(), string(expected))
	current, err := ScanThumbnail(row, DialectSQLite)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load thumbnail: %w", err)
	}

	if err := jobs.ApplyMutation(current, expected, mutate); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE thumbnails
		SET title = ?, style = ?, aspect_ratio = ?, color_scheme = ?, text_overlay = ?,
			prompt_text = ?, status = ?, result_content = ?, result_url = ?, error_detail = ?,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		current.Title, current.Style, current.AspectRatio, current.ColorScheme, current.TextOverlay,
		current.PromptText, string(current.Status),
		NullIfEmpty(current.ResultContent), NullIfEmpty(current.ResultURL), NullIfEmpty(current.ErrorDetail),
		current.UpdatedAt.UnixNano(),
		id.String(), string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update thumbnail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update thumbnail rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit thumbnail update: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	var deleted *models.Thumbnail
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			DELETE FROM thumbnails
			WHERE id = ?
			RETURNING `+ThumbnailColumns, id.String())
		t, err := ScanThumbnail(row, DialectSQLite)
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("delete thumbnail: %w", err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *SQLiteStore) ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.Thumbnail, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ThumbnailColumns+`
		FROM thumbnails
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`,
		string(status), olderThan.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale thumbnails: %w", err)
	}
	return collect(rows)
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Thumbnail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ThumbnailColumns+`
		FROM thumbnails
		WHERE owner_id = ?
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.Thumbnail, error) {
	defer rows.Close()
	out := make([]models.Thumbnail, 0)
	for rows.Next() {
		t, err := ScanThumbnail(rows, DialectSQLite)
		if err != nil {
			return nil, fmt.Errorf("scan thumbnail: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thumbnails: %w", err)
	}
	return out, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
