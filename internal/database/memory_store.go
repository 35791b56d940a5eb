package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

// MemoryStore keeps records in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]models.Thumbnail
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]models.Thumbnail)}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Insert(_ context.Context, t *models.Thumbnail) error {
	if err := t.CheckInvariants(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[t.ID]; exists {
		return fmt.Errorf("thumbnail %s already exists", t.ID)
	}
	s.rows[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return &row, nil
}

func (s *MemoryStore) CompareAndUpdate(_ context.Context, id uuid.UUID, expected models.Status, mutate jobs.Mutator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok || row.Status != expected {
		return false, nil
	}
	if err := jobs.ApplyMutation(&row, expected, mutate); err != nil {
		return false, err
	}
	s.rows[id] = row
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) (*models.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	delete(s.rows, id)
	return &row, nil
}

func (s *MemoryStore) ListStale(_ context.Context, status models.Status, olderThan time.Time, limit int) ([]models.Thumbnail, error) {
	s.mu.RLock()
	var out []models.Thumbnail
	for _, row := range s.rows {
		if row.Status == status && row.UpdatedAt.Before(olderThan) {
			out = append(out, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]models.Thumbnail, error) {
	s.mu.RLock()
	out := make([]models.Thumbnail, 0)
	for _, row := range s.rows {
		if row.OwnerID == ownerID {
			out = append(out, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
