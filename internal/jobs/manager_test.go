package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"thumbforge-backend/internal/database"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/mocks"
	"thumbforge-backend/internal/models"
)

func TestNewManager_RequiresCollaborators(t *testing.T) {
	pool := jobs.NewPool(1, zerolog.Nop())
	store := database.NewMemoryStore()

	_, err := jobs.NewManager(jobs.ManagerOptions{Provider: succeeding(), Pool: pool})
	assert.Error(t, err)
	_, err = jobs.NewManager(jobs.ManagerOptions{Store: store, Pool: pool})
	assert.Error(t, err)
	_, err = jobs.NewManager(jobs.ManagerOptions{Store: store, Provider: succeeding()})
	assert.Error(t, err)
}

func TestSubmit_SunsetCompletesWithDefaults(t *testing.T) {
	h := newHarness(t, succeeding())
	ctx := context.Background()

	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "Sunset"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, thumb.Status)
	assert.Equal(t, "modern", thumb.Style)
	assert.Equal(t, "16:9", thumb.AspectRatio)
	assert.Equal(t, "vibrant", thumb.ColorScheme)
	assert.False(t, thumb.TextOverlay)

	done := h.waitTerminal(t, thumb.ID)
	assert.Equal(t, models.StatusComplete, done.Status)
	assert.True(t, strings.HasPrefix(done.ResultContent, "data:image/png;base64,"))
	assert.Empty(t, done.ErrorDetail)
	assert.True(t, done.UpdatedAt.After(done.CreatedAt) || done.UpdatedAt.Equal(done.CreatedAt))
	assert.Equal(t, 1, h.events.count(jobs.EventCompleted))
}

func TestSubmit_ReturnsBeforeGeneration(t *testing.T) {
	release := make(chan struct{})
	provider := providerFunc(func(ctx context.Context, _ jobs.Prompt) (*jobs.Content, error) {
		<-release
		return &jobs.Content{Data: pngBytes, MIMEType: "image/png"}, nil
	})
	h := newHarness(t, provider)
	ctx := context.Background()

	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "Sunset"})
	require.NoError(t, err)

	got, err := h.manager.GetJob(ctx, thumb.ID)
	require.NoError(t, err)
	assert.Contains(t, []models.Status{models.StatusCreated, models.StatusGenerating}, got.Status)
	assert.Empty(t, got.ResultContent)
	assert.Empty(t, got.ResultURL)

	close(release)
	assert.Equal(t, models.StatusComplete, h.waitTerminal(t, thumb.ID).Status)
}

func TestSubmit_InvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		req   jobs.SubmitRequest
		field string
	}{
		{"missing owner", jobs.SubmitRequest{Title: "X"}, "owner_id"},
		{"malformed owner", jobs.SubmitRequest{OwnerID: "u 1", Title: "X"}, "owner_id"},
		{"missing title", jobs.SubmitRequest{OwnerID: "u1"}, "title"},
		{"blank title", jobs.SubmitRequest{OwnerID: "u1", Title: "   "}, "title"},
		{"title too long", jobs.SubmitRequest{OwnerID: "u1", Title: strings.Repeat("a", 256)}, "title"},
		{"bad aspect ratio", jobs.SubmitRequest{OwnerID: "u1", Title: "X", AspectRatio: "wide"}, "aspect_ratio"},
		{"prompt too long", jobs.SubmitRequest{OwnerID: "u1", Title: "X", UserPrompt: strings.Repeat("p", 4001)}, "user_prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, succeeding())

			_, err := h.manager.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, jobs.ErrInvalidRequest)

			var verr *jobs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			owned, err := h.store.ListByOwner(context.Background(), tt.req.OwnerID)
			require.NoError(t, err)
			assert.Empty(t, owned, "no record may be persisted for a rejected request")
		})
	}
}

func TestSubmit_MissingOwnerLeavesNothingBehind(t *testing.T) {
	h := newHarness(t, succeeding())
	ctx := context.Background()

	_, err := h.manager.Submit(ctx, jobs.SubmitRequest{Title: "X"})
	assert.ErrorIs(t, err, jobs.ErrInvalidRequest)

	_, err = h.manager.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.Zero(t, h.events.count(jobs.EventGenerating))
}

func TestSubmit_IdentityResolver(t *testing.T) {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityResolver(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Identities = identities })
	ctx := context.Background()

	identities.EXPECT().OwnerExists(gomock.Any(), "ghost").Return(false, nil)
	_, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "ghost", Title: "X"})
	assert.ErrorIs(t, err, jobs.ErrInvalidRequest)

	lookupErr := errors.New("profiles unavailable")
	identities.EXPECT().OwnerExists(gomock.Any(), "u1").Return(false, lookupErr)
	_, err = h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	assert.ErrorIs(t, err, lookupErr)
	assert.NotErrorIs(t, err, jobs.ErrInvalidRequest)

	identities.EXPECT().OwnerExists(gomock.Any(), "u1").Return(true, nil)
	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, h.waitTerminal(t, thumb.ID).Status)
}

func TestSubmit_StorageFailureIsSurfaced(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Store = store })

	dbErr := errors.New("connection refused")
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(dbErr)

	_, err := h.manager.Submit(context.Background(), jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrStorage)
	assert.ErrorIs(t, err, dbErr)

	var serr *jobs.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "insert thumbnail", serr.Op)
}

func TestSubmit_FailedAdvanceDiscardsRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Store = store })

	var inserted uuid.UUID
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *models.Thumbnail) error {
			inserted = row.ID
			return nil
		})
	dbErr := errors.New("connection reset")
	store.EXPECT().CompareAndUpdate(gomock.Any(), gomock.Any(), models.StatusCreated, gomock.Any()).
		Return(false, dbErr)
	store.EXPECT().Delete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
			assert.Equal(t, inserted, id)
			assert.NoError(t, ctx.Err())
			return &models.Thumbnail{ID: id, Status: models.StatusCreated}, nil
		})

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := h.manager.Submit(reqCtx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, h.manager.IsActive(inserted))
	assert.Zero(t, h.events.count(jobs.EventGenerating))
}

func TestSubmit_FailedAdvanceLeavesRowToSweep(t *testing.T) {
	ctx := context.Background()
	store := &failingAdvanceStore{MemoryStore: database.NewMemoryStore()}
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Store = store })

	_, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.ErrorIs(t, err, jobs.ErrStorage)

	left, err := store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, left, 1, "the delete failed too, so the row is still there")
	assert.Equal(t, models.StatusCreated, left[0].Status)

	s := newSweeper(t, store, func(o *jobs.SweeperOptions) {
		o.Now = func() time.Time { return time.Now().Add(time.Hour) }
		o.Active = h.manager.IsActive
	})
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err = store.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

// failingAdvanceStore refuses the Created to Generating step and the first
// delete, as a dropped connection would.
type failingAdvanceStore struct {
	*database.MemoryStore
	deletes int
}

func (s *failingAdvanceStore) CompareAndUpdate(ctx context.Context, id uuid.UUID, expected models.Status, mutate jobs.Mutator) (bool, error) {
	if expected == models.StatusCreated {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.CompareAndUpdate(ctx, id, expected, mutate)
}

func (s *failingAdvanceStore) Delete(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	s.deletes++
	if s.deletes == 1 {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.Delete(ctx, id)
}

func TestSubmit_StoppedPoolLeavesJobGenerating(t *testing.T) {
	h := newHarness(t, succeeding())
	h.stopPool(t)

	thumb, err := h.manager.Submit(context.Background(), jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.NoError(t, err)

	got, err := h.manager.GetJob(context.Background(), thumb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, got.Status)
}

func TestGetJob_IsReadOnly(t *testing.T) {
	h := newHarness(t, succeeding())
	h.stopPool(t)
	ctx := context.Background()

	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.NoError(t, err)

	first, err := h.manager.GetJob(ctx, thumb.ID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := h.manager.GetJob(ctx, thumb.ID)
		require.NoError(t, err)
		assert.Equal(t, *first, *again)
	}
}

func TestDeleteJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	assets := mocks.NewMockAssetStore(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Assets = assets })
	ctx := context.Background()

	assets.EXPECT().Put(gomock.Any(), "u1", gomock.Any(), gomock.Any()).
		Return("users/u1/thumbnails/x.png", "https://cdn/x.png", nil)
	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.NoError(t, err)
	h.waitTerminal(t, thumb.ID)

	assets.EXPECT().Remove(gomock.Any(), "users/u1/thumbnails/x.png").Return(nil)
	require.NoError(t, h.manager.DeleteJob(ctx, thumb.ID))

	_, err = h.manager.GetJob(ctx, thumb.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.ErrorIs(t, h.manager.DeleteJob(ctx, thumb.ID), jobs.ErrNotFound)
	assert.Equal(t, 1, h.events.count(jobs.EventDeleted))
}

func TestDeleteJob_RemovesAssetOfDeletedRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	assets := mocks.NewMockAssetStore(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) {
		o.Store = store
		o.Assets = assets
	})

	// The run completed just before the delete landed.
	id := uuid.New()
	store.EXPECT().Delete(gomock.Any(), id).Return(&models.Thumbnail{
		ID:            id,
		OwnerID:       "u1",
		Status:        models.StatusComplete,
		ResultContent: "users/u1/thumbnails/late.png",
	}, nil)
	assets.EXPECT().Remove(gomock.Any(), "users/u1/thumbnails/late.png").Return(nil)

	require.NoError(t, h.manager.DeleteJob(context.Background(), id))
	assert.Equal(t, 1, h.events.count(jobs.EventDeleted))
}

func TestDeleteJob_WhileGenerating(t *testing.T) {
	release := make(chan struct{})
	provider := providerFunc(func(context.Context, jobs.Prompt) (*jobs.Content, error) {
		<-release
		return &jobs.Content{Data: pngBytes, MIMEType: "image/png"}, nil
	})
	h := newHarness(t, provider)
	ctx := context.Background()

	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "X"})
	require.NoError(t, err)
	require.NoError(t, h.manager.DeleteJob(ctx, thumb.ID))
	close(release)

	require.Eventually(t, func() bool { return !h.manager.IsActive(thumb.ID) }, 5*time.Second, 5*time.Millisecond)
	_, err = h.manager.GetJob(ctx, thumb.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound, "a late provider result must not resurrect a deleted job")
	assert.Zero(t, h.events.count(jobs.EventCompleted))
}

func TestListJobs(t *testing.T) {
	h := newHarness(t, succeeding())
	h.stopPool(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B"} {
		_, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: title})
		require.NoError(t, err)
	}
	_, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u2", Title: "C"})
	require.NoError(t, err)

	got, err := h.manager.ListJobs(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateDetails(t *testing.T) {
	h := newHarness(t, succeeding())
	h.stopPool(t)
	ctx := context.Background()

	thumb, err := h.manager.Submit(ctx, jobs.SubmitRequest{OwnerID: "u1", Title: "Old"})
	require.NoError(t, err)

	title, overlay := "  New  ", true
	updated, err := h.manager.UpdateDetails(ctx, thumb.ID, jobs.UpdateRequest{Title: &title, TextOverlay: &overlay})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.True(t, updated.TextOverlay)
	assert.Equal(t, models.StatusGenerating, updated.Status, "descriptive updates never move status")
	assert.Equal(t, "modern", updated.Style)

	blank := ""
	_, err = h.manager.UpdateDetails(ctx, thumb.ID, jobs.UpdateRequest{Title: &blank})
	assert.ErrorIs(t, err, jobs.ErrInvalidRequest)

	ratio := "4-3"
	_, err = h.manager.UpdateDetails(ctx, thumb.ID, jobs.UpdateRequest{AspectRatio: &ratio})
	assert.ErrorIs(t, err, jobs.ErrInvalidRequest)

	_, err = h.manager.UpdateDetails(ctx, uuid.New(), jobs.UpdateRequest{Title: &title})
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestUpdateDetails_ConflictAfterRepeatedRaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	h := newHarness(t, succeeding(), func(o *jobs.ManagerOptions) { o.Store = store })

	id := uuid.New()
	store.EXPECT().GetByID(gomock.Any(), id).
		Return(&models.Thumbnail{ID: id, OwnerID: "u1", Title: "X", Status: models.StatusGenerating}, nil).
		Times(3)
	store.EXPECT().CompareAndUpdate(gomock.Any(), id, models.StatusGenerating, gomock.Any()).
		Return(false, nil).
		Times(3)

	title := "Y"
	_, err := h.manager.UpdateDetails(context.Background(), id, jobs.UpdateRequest{Title: &title})
	assert.ErrorIs(t, err, jobs.ErrConflict)
}
