package database_test

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbforge-backend/internal/database"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
	"thumbforge-backend/internal/supabase"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newThumb(owner string, status models.Status, updated time.Time) *models.Thumbnail {
	t := &models.Thumbnail{
		ID:          uuid.New(),
		OwnerID:     owner,
		Title:       "Sunset",
		Style:       models.DefaultStyle,
		AspectRatio: models.DefaultAspectRatio,
		ColorScheme: models.DefaultColorScheme,
		Status:      status,
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
	switch status {
	case models.StatusComplete:
		t.ResultContent = "u1/" + t.ID.String() + ".png"
	case models.StatusFailed:
		t.ErrorDetail = string(models.ReasonProviderTimeout)
	}
	return t
}

func stores(t *testing.T) map[string]func(t *testing.T) jobs.Store {
	m := map[string]func(t *testing.T) jobs.Store{
		"memory": func(t *testing.T) jobs.Store {
			return database.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) jobs.Store {
			path := filepath.Join(t.TempDir(), "thumbs.db")
			s, err := database.OpenSQLite(context.Background(), path, zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		m["postgres"] = func(t *testing.T) jobs.Store {
			return openPostgres(t, dsn)
		}
	}
	return m
}

// openPostgres migrates a throwaway schema so each test starts from an empty
// table.
func openPostgres(t *testing.T, dsn string) jobs.Store {
	t.Helper()
	ctx := context.Background()

	admin, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	schema := "thumbforge_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	s, err := supabase.NewDatabaseClient(ctx, u.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Migrate(ctx, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestStore_InsertAndGet(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			in := newThumb("u1", models.StatusCreated, base)
			in.PromptText = "golden hour"
			in.TextOverlay = true
			require.NoError(t, s.Insert(ctx, in))

			got, err := s.GetByID(ctx, in.ID)
			require.NoError(t, err)
			assert.Equal(t, *in, *got)

			_, err = s.GetByID(ctx, uuid.New())
			assert.ErrorIs(t, err, jobs.ErrNotFound)
		})
	}
}

func TestStore_InsertRejectsInconsistentRecord(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			bad := newThumb("u1", models.StatusGenerating, base)
			bad.ResultURL = "https://example.com/x.png"

			err := open(t).Insert(context.Background(), bad)
			var invErr *models.InvariantError
			assert.ErrorAs(t, err, &invErr)
		})
	}
}

func TestStore_CompareAndUpdate(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			row := newThumb("u1", models.StatusGenerating, base)
			require.NoError(t, s.Insert(ctx, row))

			ok, err := s.CompareAndUpdate(ctx, row.ID, models.StatusCreated, func(r *models.Thumbnail) error {
				r.Title = "never"
				return nil
			})
			require.NoError(t, err)
			assert.False(t, ok, "status mismatch must not write")

			ok, err = s.CompareAndUpdate(ctx, row.ID, models.StatusGenerating, func(r *models.Thumbnail) error {
				r.Status = models.StatusComplete
				r.ResultContent = "data:image/png;base64,AAAA"
				r.ResultURL = "https://cdn.example.com/a.png"
				r.UpdatedAt = base.Add(time.Minute)
				r.OwnerID = "someone-else"
				return nil
			})
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.GetByID(ctx, row.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusComplete, got.Status)
			assert.Equal(t, "data:image/png;base64,AAAA", got.ResultContent)
			assert.Equal(t, "u1", got.OwnerID, "owner is immutable")
			assert.Equal(t, base.Add(time.Minute), got.UpdatedAt)

			ok, err = s.CompareAndUpdate(ctx, uuid.New(), models.StatusGenerating, func(*models.Thumbnail) error {
				return nil
			})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_CompareAndUpdateRejectsIllegalWrites(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			row := newThumb("u1", models.StatusFailed, base)
			require.NoError(t, s.Insert(ctx, row))

			_, err := s.CompareAndUpdate(ctx, row.ID, models.StatusFailed, func(r *models.Thumbnail) error {
				r.Status = models.StatusGenerating
				r.ErrorDetail = ""
				return nil
			})
			assert.ErrorIs(t, err, jobs.ErrIllegalTransition)

			_, err = s.CompareAndUpdate(ctx, row.ID, models.StatusFailed, func(r *models.Thumbnail) error {
				r.ResultURL = "https://example.com/x.png"
				return nil
			})
			var invErr *models.InvariantError
			assert.ErrorAs(t, err, &invErr)

			boom := errors.New("boom")
			_, err = s.CompareAndUpdate(ctx, row.ID, models.StatusFailed, func(*models.Thumbnail) error {
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.GetByID(ctx, row.ID)
			require.NoError(t, err)
			assert.Equal(t, *row, *got, "rejected writes leave the row untouched")
		})
	}
}

func TestStore_ConcurrentCompareAndUpdateWritesOnce(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			row := newThumb("u1", models.StatusGenerating, base)
			require.NoError(t, s.Insert(ctx, row))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.CompareAndUpdate(ctx, row.ID, models.StatusGenerating, func(r *models.Thumbnail) error {
						r.Status = models.StatusFailed
						r.ErrorDetail = string(models.ReasonOrphaned)
						return nil
					})
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			row := newThumb("u1", models.StatusComplete, base)
			require.NoError(t, s.Insert(ctx, row))

			deleted, err := s.Delete(ctx, row.ID)
			require.NoError(t, err)
			assert.Equal(t, *row, *deleted, "delete returns the row it removed")

			_, err = s.Delete(ctx, row.ID)
			assert.ErrorIs(t, err, jobs.ErrNotFound)

			_, err = s.GetByID(ctx, row.ID)
			assert.ErrorIs(t, err, jobs.ErrNotFound)
		})
	}
}

func TestStore_ListStale(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			oldest := newThumb("u1", models.StatusGenerating, base.Add(-3*time.Hour))
			older := newThumb("u2", models.StatusGenerating, base.Add(-2*time.Hour))
			fresh := newThumb("u1", models.StatusGenerating, base)
			done := newThumb("u1", models.StatusComplete, base.Add(-5*time.Hour))
			abandoned := newThumb("u1", models.StatusCreated, base.Add(-4*time.Hour))
			for _, row := range []*models.Thumbnail{fresh, older, done, oldest, abandoned} {
				require.NoError(t, s.Insert(ctx, row))
			}

			cutoff := base.Add(-time.Hour)
			got, err := s.ListStale(ctx, models.StatusGenerating, cutoff, 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, oldest.ID, got[0].ID)
			assert.Equal(t, older.ID, got[1].ID)

			got, err = s.ListStale(ctx, models.StatusGenerating, cutoff, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, oldest.ID, got[0].ID)

			got, err = s.ListStale(ctx, models.StatusGenerating, cutoff, 0)
			require.NoError(t, err)
			assert.Len(t, got, 2, "a zero limit lists every stale row")

			got, err = s.ListStale(ctx, models.StatusCreated, cutoff, 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, abandoned.ID, got[0].ID)
		})
	}
}

func TestStore_ListByOwner(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			first := newThumb("u1", models.StatusComplete, base)
			second := newThumb("u1", models.StatusCreated, base.Add(time.Second))
			other := newThumb("u2", models.StatusCreated, base)
			for _, row := range []*models.Thumbnail{first, other, second} {
				require.NoError(t, s.Insert(ctx, row))
			}

			got, err := s.ListByOwner(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, second.ID, got[0].ID, "newest first")
			assert.Equal(t, first.ID, got[1].ID)

			got, err = s.ListByOwner(ctx, "nobody")
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}
