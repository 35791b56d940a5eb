package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thumbforge-backend/internal/models"
)

// ThumbnailColumns is the select list understood by ScanThumbnail.
const ThumbnailColumns = `id, owner_id, title, style, aspect_ratio, color_scheme, text_overlay,
	prompt_text, status, result_content, result_url, error_detail, created_at, updated_at`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanThumbnail reads one row selected with ThumbnailColumns. SQLite rows
// carry timestamps as unix nanoseconds, Postgres rows as timestamptz.
func ScanThumbnail(row RowScanner, dialect Dialect) (*models.Thumbnail, error) {
	var (
		t                         models.Thumbnail
		id                        string
		status                    string
		content, url, errorDetail sql.NullString
		err                       error
	)

	if dialect == DialectSQLite {
		var created, updated int64
		err = row.Scan(&id, &t.OwnerID, &t.Title, &t.Style, &t.AspectRatio, &t.ColorScheme,
			&t.TextOverlay, &t.PromptText, &status, &content, &url, &errorDetail, &created, &updated)
		t.CreatedAt = time.Unix(0, created).UTC()
		t.UpdatedAt = time.Unix(0, updated).UTC()
	} else {
		err = row.Scan(&id, &t.OwnerID, &t.Title, &t.Style, &t.AspectRatio, &t.ColorScheme,
			&t.TextOverlay, &t.PromptText, &status, &content, &url, &errorDetail, &t.CreatedAt, &t.UpdatedAt)
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
	}
	if err != nil {
		return nil, err
	}

	t.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse thumbnail id %q: %w", id, err)
	}
	t.Status = models.Status(status)
	t.ResultContent = content.String
	t.ResultURL = url.String
	t.ErrorDetail = errorDetail.String
	return &t, nil
}

// NullIfEmpty maps "" to SQL NULL so the schema's status checks hold.
func NullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
