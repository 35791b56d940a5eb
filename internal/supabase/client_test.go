package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbforge-backend/internal/config"
)

func TestProfileResolver_OwnerExists(t *testing.T) {
	var gotPath, gotSelect, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSelect = r.URL.Query().Get("select")
		gotID = r.URL.Query().Get("id")
		w.Header().Set("Content-Type", "application/json")
		if gotID == "eq.user-1" {
			_, _ = w.Write([]byte(`[{"id":"user-1"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := NewClient(&config.Config{
		SupabaseURL:            srv.URL,
		SupabasePublishableKey: "anon-key",
		SupabaseProfilesTable:  "profiles",
	})
	require.NoError(t, err)
	resolver := client.Identities()

	exists, err := resolver.OwnerExists(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "/rest/v1/profiles", gotPath)
	assert.Equal(t, "id", gotSelect)

	exists, err = resolver.OwnerExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProfileResolver_CancelledContext(t *testing.T) {
	client, err := NewClient(&config.Config{
		SupabaseURL:            "http://127.0.0.1:1",
		SupabasePublishableKey: "anon-key",
		SupabaseProfilesTable:  "profiles",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Identities().OwnerExists(ctx, "user-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_RequiresURLAndKey(t *testing.T) {
	_, err := NewClient(&config.Config{})
	assert.Error(t, err)
}
