package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"thumbforge-backend/internal/jobs"
)

// Publisher fans thumbnail lifecycle events out over Redis pub/sub. Each event
// goes to the owner's channel and to the job's channel.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

func NewPublisher(client redis.UniversalClient, prefix string) *Publisher {
	if prefix == "" {
		prefix = "thumbforge"
	}
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, event jobs.Event) error {
	body, err := json.Marshal(EventPayload(event))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	for _, channel := range []string{
		p.UserChannel(event.Thumbnail.OwnerID),
		p.JobChannel(event.Thumbnail.ID.String()),
	} {
		if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
	}
	return nil
}

func (p *Publisher) UserChannel(ownerID string) string {
	return fmt.Sprintf("%s:user:%s", p.prefix, ownerID)
}

func (p *Publisher) JobChannel(jobID string) string {
	return fmt.Sprintf("%s:thumbnail:%s", p.prefix, jobID)
}

// EventPayload is the JSON body sent to subscribers.
func EventPayload(event jobs.Event) map[string]interface{} {
	t := event.Thumbnail
	payload := map[string]interface{}{
		"event":        string(event.Type),
		"thumbnail_id": t.ID.String(),
		"owner_id":     t.OwnerID,
		"status":       string(t.Status),
		"updated_at":   t.UpdatedAt,
	}
	switch event.Type {
	case jobs.EventCompleted:
		payload["result_url"] = t.ResultURL
	case jobs.EventFailed:
		payload["error"] = t.ErrorDetail
	}
	return payload
}
