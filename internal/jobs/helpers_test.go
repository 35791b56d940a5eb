package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"thumbforge-backend/internal/database"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G'}

type providerFunc func(ctx context.Context, p jobs.Prompt) (*jobs.Content, error)

func (f providerFunc) Generate(ctx context.Context, p jobs.Prompt) (*jobs.Content, error) {
	return f(ctx, p)
}

func succeeding() jobs.Provider {
	return providerFunc(func(context.Context, jobs.Prompt) (*jobs.Content, error) {
		return &jobs.Content{Data: pngBytes, MIMEType: "image/png"}, nil
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []jobs.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e jobs.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) count(typ jobs.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	manager *jobs.Manager
	store   *database.MemoryStore
	pool    *jobs.Pool
	events  *recordingPublisher
}

func newHarness(t *testing.T, provider jobs.Provider, configure ...func(*jobs.ManagerOptions)) *harness {
	t.Helper()
	h := &harness{
		store:  database.NewMemoryStore(),
		pool:   jobs.NewPool(4, zerolog.Nop()),
		events: &recordingPublisher{},
	}
	opts := jobs.ManagerOptions{
		Store:             h.store,
		Provider:          provider,
		Pool:              h.pool,
		Events:            h.events,
		GenerationTimeout: time.Second,
		Logger:            zerolog.Nop(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	h.pool = opts.Pool

	m, err := jobs.NewManager(opts)
	require.NoError(t, err)
	h.manager = m

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.pool.Stop(ctx)
	})
	return h
}

// stopPool keeps Submit from scheduling generation so tests can drive RunGeneration.
func (h *harness) stopPool(t *testing.T) {
	t.Helper()
	require.NoError(t, h.pool.Stop(context.Background()))
}

func (h *harness) waitTerminal(t *testing.T, id uuid.UUID) *models.Thumbnail {
	t.Helper()
	var got *models.Thumbnail
	require.Eventually(t, func() bool {
		thumb, err := h.manager.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = thumb
		return thumb.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return got
}
