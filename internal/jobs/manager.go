package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"thumbforge-backend/internal/models"
)

const (
	defaultGenerationTimeout = 45 * time.Second
	terminalWriteTimeout     = 10 * time.Second
	maxUpdateAttempts        = 3
)

// ManagerOptions groups the manager's collaborators.
type ManagerOptions struct {
	Store    Store    // Required
	Provider Provider // Required
	Pool     *Pool    // Required: runs generation units

	Assets     AssetStore       // Optional: without it results are stored inline as data URIs
	Identities IdentityResolver // Optional: without it owner ids are only format-checked
	Events     EventPublisher   // Optional

	GenerationTimeout time.Duration
	Logger            zerolog.Logger
	Now               func() time.Time
}

// Manager owns every state transition of a thumbnail record.
type Manager struct {
	store      Store
	provider   Provider
	pool       *Pool
	assets     AssetStore
	identities IdentityResolver
	events     EventPublisher
	timeout    time.Duration
	logger     zerolog.Logger
	clock      func() time.Time

	activeMu sync.Mutex
	active   map[uuid.UUID]int
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("worker pool is required")
	}

	timeout := opts.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}

	return &Manager{
		store:      opts.Store,
		provider:   opts.Provider,
		pool:       opts.Pool,
		assets:     opts.Assets,
		identities: opts.Identities,
		events:     opts.Events,
		timeout:    timeout,
		logger:     opts.Logger.With().Str("component", "job_manager").Logger(),
		clock:      clock,
		active:     make(map[uuid.UUID]int),
	}, nil
}

// Submit validates req, persists a new record, advances it to Generating and
// schedules generation. It returns without waiting for the provider.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*models.Thumbnail, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	if m.identities != nil {
		exists, err := m.identities.OwnerExists(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve owner: %w", err)
		}
		if !exists {
			return nil, &ValidationError{Field: "owner_id", Message: "does not match a known user"}
		}
	}

	now := m.now()
	thumb := &models.Thumbnail{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		ColorScheme: req.ColorScheme,
		TextOverlay: req.TextOverlay,
		PromptText:  req.UserPrompt,
		Status:      models.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Insert(ctx, thumb); err != nil {
		return nil, storageErr("insert thumbnail", err)
	}
	// Active from insert until the scheduled unit exits, so the sweep never
	// touches a row this process still owns.
	release := m.track(thumb.ID)

	var advanced models.Thumbnail
	ok, err := m.store.CompareAndUpdate(ctx, thumb.ID, models.StatusCreated, func(row *models.Thumbnail) error {
		row.Status = models.StatusGenerating
		row.UpdatedAt = m.now()
		advanced = *row
		return nil
	})
	if err != nil {
		m.discard(ctx, thumb.ID)
		release()
		return nil, storageErr("mark thumbnail generating", err)
	}
	if !ok {
		release()
		// Only a concurrent delete can move a row out of Created.
		return nil, ErrNotFound
	}

	m.publish(ctx, EventGenerating, advanced)

	id := advanced.ID
	scheduled := m.pool.Go(func(ctx context.Context) {
		defer release()
		m.runScheduled(ctx, id)
	}, func() {
		release()
		m.logger.Warn().
			Str("job_id", id.String()).
			Msg("worker pool cancelled before job started; left for reconciliation sweep")
	})
	if !scheduled {
		release()
		m.logger.Warn().
			Str("job_id", id.String()).
			Msg("worker pool stopped; job left for reconciliation sweep")
	}

	return &advanced, nil
}

// discard removes the row of a submission that was not accepted. Failures are
// logged; the sweep deletes stale Created rows left behind.
func (m *Manager) discard(ctx context.Context, id uuid.UUID) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if _, err := m.store.Delete(delCtx, id); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.Warn().Err(err).Str("job_id", id.String()).Msg("failed to discard unaccepted thumbnail")
	}
}

// GetJob returns the stored record as is.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	thumb, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get thumbnail", err)
	}
	return thumb, nil
}

// ListJobs returns the owner's records, newest first.
func (m *Manager) ListJobs(ctx context.Context, ownerID string) ([]models.Thumbnail, error) {
	thumbs, err := m.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr("list thumbnails", err)
	}
	return thumbs, nil
}

// DeleteJob removes the record regardless of its state. The asset removed is
// the one referenced by the row as deleted, so a run completing just before
// the delete does not leave its upload behind.
func (m *Manager) DeleteJob(ctx context.Context, id uuid.UUID) error {
	thumb, err := m.store.Delete(ctx, id)
	if err != nil {
		return storageErr("delete thumbnail", err)
	}

	m.removeAsset(ctx, thumb.ResultContent)
	m.publish(ctx, EventDeleted, *thumb)
	return nil
}

// UpdateDetails changes descriptive fields only. The write is conditioned on
// the status observed just before it, so it never undoes a transition.
func (m *Manager) UpdateDetails(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.Thumbnail, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := m.store.GetByID(ctx, id)
		if err != nil {
			return nil, storageErr("get thumbnail", err)
		}

		var updated models.Thumbnail
		ok, err := m.store.CompareAndUpdate(ctx, id, current.Status, func(row *models.Thumbnail) error {
			req.apply(row)
			row.UpdatedAt = m.now()
			updated = *row
			return nil
		})
		if err != nil {
			return nil, storageErr("update thumbnail", err)
		}
		if ok {
			return &updated, nil
		}
	}
	return nil, ErrConflict
}

// IsActive reports whether this process owns id: it is being submitted,
// queued for a worker or generating.
func (m *Manager) IsActive(id uuid.UUID) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	return m.active[id] > 0
}

func (m *Manager) track(id uuid.UUID) func() {
	m.activeMu.Lock()
	m.active[id]++
	m.activeMu.Unlock()
	return func() {
		m.activeMu.Lock()
		if m.active[id]--; m.active[id] <= 0 {
			delete(m.active, id)
		}
		m.activeMu.Unlock()
	}
}

func (m *Manager) runScheduled(ctx context.Context, id uuid.UUID) {
	if err := m.RunGeneration(ctx, id); err != nil {
		m.logger.Error().
			Err(err).
			Str("job_id", id.String()).
			Msg("generation run aborted by storage failure")
	}
}

func (m *Manager) publish(ctx context.Context, typ EventType, thumb models.Thumbnail) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(context.WithoutCancel(ctx), Event{Type: typ, Thumbnail: thumb}); err != nil {
		m.logger.Warn().
			Err(err).
			Str("job_id", thumb.ID.String()).
			Str("event", string(typ)).
			Msg("failed to publish thumbnail event")
	}
}

func (m *Manager) removeAsset(ctx context.Context, ref string) {
	if m.assets == nil || ref == "" || strings.HasPrefix(ref, "data:") {
		return
	}
	if err := m.assets.Remove(context.WithoutCancel(ctx), ref); err != nil {
		m.logger.Warn().Err(err).Str("path", ref).Msg("failed to remove thumbnail asset")
	}
}

// now is truncated to microseconds so records round-trip through Postgres unchanged.
func (m *Manager) now() time.Time {
	return m.clock().UTC().Truncate(time.Microsecond)
}
