package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
	"thumbforge-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// Identities returns an owner lookup over the configured profiles table.
func (c *Client) Identities() *ProfileResolver {
	return &ProfileResolver{client: c.Supabase, table: c.Config.SupabaseProfilesTable}
}

// ProfileResolver confirms owners against the profiles table through PostgREST.
type ProfileResolver struct {
	client *supabase.Client
	table  string
}

type profileRow struct {
	ID string `json:"id"`
}

func (r *ProfileResolver) OwnerExists(ctx context.Context, ownerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var rows []profileRow
	_, err := r.client.From(r.table).
		Select("id", "", false).
		Eq("id", ownerID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("failed to look up profile: %w", err)
	}
	return len(rows) > 0, nil
}
