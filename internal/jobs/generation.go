package jobs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thumbforge-backend/internal/models"
)

// RunGeneration drives a Generating job to exactly one terminal write. It is a
// no-op when the job is gone or no longer Generating, so re-entry is safe.
// Provider failures end up in the record; only storage failures are returned.
func (m *Manager) RunGeneration(ctx context.Context, id uuid.UUID) error {
	release := m.track(id)
	defer release()

	thumb, err := m.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("load thumbnail", err)
	}
	if thumb.Status != models.StatusGenerating {
		m.logger.Debug().
			Str("job_id", id.String()).
			Str("status", string(thumb.Status)).
			Msg("skipping generation for job not in Generating")
		return nil
	}

	started := time.Now()
	content, err := m.generate(ctx, promptFor(thumb))
	if err != nil {
		reason := ClassifyProviderError(err)
		m.logger.Warn().
			Err(err).
			Str("job_id", id.String()).
			Str("reason", string(reason)).
			Dur("elapsed", time.Since(started)).
			Msg("generation failed")
		return m.fail(ctx, id, reason)
	}

	ref, url, err := m.persistContent(ctx, thumb, content)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to store generated asset")
		return m.fail(ctx, id, models.ReasonAssetUploadFailed)
	}

	m.logger.Info().
		Str("job_id", id.String()).
		Dur("elapsed", time.Since(started)).
		Msg("generation succeeded")
	return m.complete(ctx, id, ref, url)
}

// generate calls the provider under the generation timeout. The call is made
// on its own goroutine so a provider that ignores ctx cannot hold the job past
// the deadline; its late result is dropped.
func (m *Manager) generate(ctx context.Context, prompt Prompt) (*Content, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type result struct {
		content *Content
		err     error
	}
	results := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- result{err: &ProviderError{
					Reason: models.ReasonProviderInvalidResponse,
					Err:    fmt.Errorf("provider panicked: %v", r),
				}}
			}
		}()
		content, err := m.provider.Generate(callCtx, prompt)
		results <- result{content: content, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			if callCtx.Err() != nil && ctx.Err() == nil {
				return nil, &ProviderError{Reason: models.ReasonProviderTimeout, Err: res.err}
			}
			return nil, res.err
		}
		if res.content == nil || (len(res.content.Data) == 0 && res.content.URL == "") {
			return nil, &ProviderError{
				Reason: models.ReasonProviderInvalidResponse,
				Err:    errors.New("provider returned no content"),
			}
		}
		return res.content, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, &ProviderError{Reason: models.ReasonProviderUnavailable, Err: ctx.Err()}
		}
		return nil, &ProviderError{
			Reason: models.ReasonProviderTimeout,
			Err:    fmt.Errorf("no response after %s", m.timeout),
		}
	}
}

// persistContent returns the values for ResultContent and ResultURL.
func (m *Manager) persistContent(ctx context.Context, thumb *models.Thumbnail, content *Content) (string, string, error) {
	if len(content.Data) == 0 {
		return content.URL, content.URL, nil
	}
	if m.assets == nil {
		mime := content.MIMEType
		if mime == "" {
			mime = "application/octet-stream"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content.Data), content.URL, nil
	}

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	path, url, err := m.assets.Put(putCtx, thumb.OwnerID, thumb.ID, content)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload thumbnail asset: %w", err)
	}
	return path, url, nil
}

func (m *Manager) complete(ctx context.Context, id uuid.UUID, ref, url string) error {
	written, ok, err := m.terminalWrite(ctx, id, func(row *models.Thumbnail) error {
		row.Status = models.StatusComplete
		row.ResultContent = ref
		row.ResultURL = url
		row.ErrorDetail = ""
		row.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		m.removeAsset(ctx, ref)
		return storageErr("mark thumbnail complete", err)
	}
	if !ok {
		m.logger.Info().Str("job_id", id.String()).Msg("job left Generating before completion was written")
		m.removeAsset(ctx, ref)
		return nil
	}
	m.publish(ctx, EventCompleted, written)
	return nil
}

func (m *Manager) fail(ctx context.Context, id uuid.UUID, reason models.FailureReason) error {
	written, ok, err := m.terminalWrite(ctx, id, func(row *models.Thumbnail) error {
		row.Status = models.StatusFailed
		row.ResultContent = ""
		row.ResultURL = ""
		row.ErrorDetail = string(reason)
		row.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return storageErr("mark thumbnail failed", err)
	}
	if !ok {
		m.logger.Info().Str("job_id", id.String()).Msg("job left Generating before failure was written")
		return nil
	}
	m.publish(ctx, EventFailed, written)
	return nil
}

// terminalWrite runs on a context detached from the caller so that shutdown
// or a cancelled request cannot leave a decided job in Generating.
func (m *Manager) terminalWrite(ctx context.Context, id uuid.UUID, mutate Mutator) (models.Thumbnail, bool, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	var written models.Thumbnail
	ok, err := m.store.CompareAndUpdate(writeCtx, id, models.StatusGenerating, func(row *models.Thumbnail) error {
		if err := mutate(row); err != nil {
			return err
		}
		written = *row
		return nil
	})
	return written, ok, err
}

func promptFor(t *models.Thumbnail) Prompt {
	return Prompt{
		JobID:       t.ID,
		Title:       t.Title,
		Style:       t.Style,
		AspectRatio: t.AspectRatio,
		ColorScheme: t.ColorScheme,
		TextOverlay: t.TextOverlay,
		UserPrompt:  t.PromptText,
	}
}
