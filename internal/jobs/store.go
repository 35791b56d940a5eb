package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thumbforge-backend/internal/models"
)

// Mutator edits a freshly loaded copy of a record inside a compare-and-update.
// It must not change ID, OwnerID or CreatedAt; stores ignore those fields.
type Mutator func(t *models.Thumbnail) error

// Store is the persistent table of thumbnail records.
type Store interface {
	Insert(ctx context.Context, t *models.Thumbnail) error
	// GetByID returns ErrNotFound when the row is absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error)
	// CompareAndUpdate applies mutate and writes the row in one atomic update,
	// but only while the stored status still equals expected. It reports false
	// when the row is absent or its status moved on.
	CompareAndUpdate(ctx context.Context, id uuid.UUID, expected models.Status, mutate Mutator) (bool, error)
	// Delete removes the row and returns it as it was at deletion. It returns
	// ErrNotFound when the row is absent.
	Delete(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error)
	// ListStale returns rows in status last updated before olderThan, oldest
	// first. A limit of zero or less means no limit.
	ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.Thumbnail, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Thumbnail, error)
}

// ApplyMutation runs mutate on row and checks the outcome against the state
// machine and the record invariants. Stores call it inside CompareAndUpdate
// before writing, so no implementation can persist an illegal transition.
func ApplyMutation(row *models.Thumbnail, expected models.Status, mutate Mutator) error {
	id, owner, created := row.ID, row.OwnerID, row.CreatedAt
	if err := mutate(row); err != nil {
		return err
	}
	row.ID, row.OwnerID, row.CreatedAt = id, owner, created

	if row.Status != expected && !expected.CanTransitionTo(row.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, row.Status)
	}
	return row.CheckInvariants()
}

// Prompt is the structured request handed to a generation provider.
type Prompt struct {
	JobID       uuid.UUID
	Title       string
	Style       string
	AspectRatio string
	ColorScheme string
	TextOverlay bool
	UserPrompt  string
}

// Content is what a provider produced for a prompt.
type Content struct {
	Data     []byte
	MIMEType string
	// URL is set when the provider hosts the asset itself.
	URL string
	// Text is any textual commentary returned alongside the asset.
	Text string
}

// Provider generates content for a prompt. Implementations should honor ctx
// and wrap failures with ErrProviderTimeout, ErrProviderUnavailable or
// ErrProviderInvalidResponse.
type Provider interface {
	Generate(ctx context.Context, prompt Prompt) (*Content, error)
}

// IdentityResolver confirms that an owner id belongs to a known user.
type IdentityResolver interface {
	OwnerExists(ctx context.Context, ownerID string) (bool, error)
}

// AssetStore persists generated bytes and returns their object path and public URL.
type AssetStore interface {
	Put(ctx context.Context, ownerID string, jobID uuid.UUID, content *Content) (path, url string, err error)
	Remove(ctx context.Context, path string) error
}

// EventPublisher fans out lifecycle events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventType names a lifecycle event.
type EventType string

const (
	EventGenerating EventType = "thumbnail.generating"
	EventCompleted  EventType = "thumbnail.completed"
	EventFailed     EventType = "thumbnail.failed"
	EventDeleted    EventType = "thumbnail.deleted"
)

// Event is published after a transition has been committed.
type Event struct {
	Type      EventType
	Thumbnail models.Thumbnail
}
