package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"thumbforge-backend/internal/models"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
)

// ErrSweepInProgress is returned by SweepOnce when another pass holds the sweep.
var ErrSweepInProgress = errors.New("reconciliation sweep already running")

// Locker provides the cross-process exclusion that keeps a single sweep
// running across replicas. ok is false when another holder has the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// SweeperOptions groups dependencies for Sweeper.
type SweeperOptions struct {
	Store      Store         // Required
	StaleAfter time.Duration // Required: must exceed the generation timeout

	Locker Locker                 // Optional: without it only in-process exclusion applies
	Active func(id uuid.UUID) bool // Optional: reports jobs generating in this process
	Events EventPublisher         // Optional

	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Sweeper fails Generating jobs that stopped making progress with reason
// Orphaned, and deletes Created rows whose submission never completed.
type Sweeper struct {
	store      Store
	locker     Locker
	active     func(uuid.UUID) bool
	events     EventPublisher
	staleAfter time.Duration
	interval   time.Duration
	batchSize  int
	logger     zerolog.Logger
	clock      func() time.Time

	running atomic.Bool
}

func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.StaleAfter <= 0 {
		return nil, errors.New("stale-after threshold must be positive")
	}

	s := &Sweeper{
		store:      opts.Store,
		locker:     opts.Locker,
		active:     opts.Active,
		events:     opts.Events,
		staleAfter: opts.StaleAfter,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger.With().Str("component", "sweeper").Logger(),
		clock:      opts.Now,
	}
	if s.interval <= 0 {
		s.interval = defaultSweepInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultSweepBatchSize
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.active == nil {
		s.active = func(uuid.UUID) bool { return false }
	}
	return s, nil
}

// Run sweeps once after a short jitter and then on every interval until ctx is
// cancelled. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.staleAfter).
		Msg("starting reconciliation sweeper")

	if jitter := s.interval / 10; jitter > 0 {
		select {
		case <-time.After(rand.N(jitter)):
		case <-ctx.Done():
			return nil
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reconciliation sweeper stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Debug().Msg("sweep skipped, another pass holds the lock")
	case err != nil && ctx.Err() == nil:
		s.logger.Error().Err(err).Msg("reconciliation sweep failed")
	case n > 0:
		s.logger.Info().Int("repaired", n).Msg("reconciliation sweep repaired jobs")
	}
}

// SweepOnce runs one pass and returns how many rows it repaired: Generating
// jobs moved to Failed plus abandoned Created rows deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			return 0, ErrSweepInProgress
		}
		defer unlock()
	}

	cutoff := s.clock().UTC().Add(-s.staleAfter)
	orphaned, err := s.failOrphaned(ctx, cutoff)
	discarded, discardErr := s.discardAbandoned(ctx, cutoff)
	return orphaned + discarded, errors.Join(err, discardErr)
}

func (s *Sweeper) failOrphaned(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.ListStale(ctx, models.StatusGenerating, cutoff, s.batchSize)
	if err != nil {
		return 0, storageErr("list stale thumbnails", err)
	}

	repaired := 0
	var errs []error
	for i := range stale {
		id := stale[i].ID
		if s.active(id) {
			continue
		}

		var written models.Thumbnail
		ok, err := s.store.CompareAndUpdate(ctx, id, models.StatusGenerating, func(row *models.Thumbnail) error {
			// Re-check under the row lock; a live run may have bumped it since listing.
			if !row.UpdatedAt.Before(cutoff) {
				return errNotStale
			}
			row.Status = models.StatusFailed
			row.ErrorDetail = string(models.ReasonOrphaned)
			row.ResultContent = ""
			row.ResultURL = ""
			row.UpdatedAt = s.clock().UTC().Truncate(time.Microsecond)
			written = *row
			return nil
		})
		if errors.Is(err, errNotStale) {
			continue
		}
		if err != nil {
			errs = append(errs, storageErr("mark thumbnail orphaned", err))
			continue
		}
		if !ok {
			continue
		}

		repaired++
		s.logger.Warn().
			Str("job_id", id.String()).
			Time("updated_at", stale[i].UpdatedAt).
			Msg("marked orphaned job as failed")
		if s.events != nil {
			if err := s.events.Publish(ctx, Event{Type: EventFailed, Thumbnail: written}); err != nil {
				s.logger.Warn().Err(err).Str("job_id", id.String()).Msg("failed to publish thumbnail event")
			}
		}
	}
	return repaired, errors.Join(errs...)
}

// discardAbandoned deletes Created rows whose submitter never advanced them.
// Such a submission was never accepted, so the row is removed rather than
// failed.
func (s *Sweeper) discardAbandoned(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.ListStale(ctx, models.StatusCreated, cutoff, s.batchSize)
	if err != nil {
		return 0, storageErr("list abandoned thumbnails", err)
	}

	discarded := 0
	var errs []error
	for i := range stale {
		id := stale[i].ID
		if s.active(id) {
			continue
		}
		if _, err := s.store.Delete(ctx, id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				errs = append(errs, storageErr("delete abandoned thumbnail", err))
			}
			continue
		}

		discarded++
		s.logger.Warn().
			Str("job_id", id.String()).
			Time("created_at", stale[i].CreatedAt).
			Msg("deleted abandoned submission")
	}
	return discarded, errors.Join(errs...)
}

var errNotStale = errors.New("job is no longer stale")
