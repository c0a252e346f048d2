package twitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/transport"
)

const recent = `{
	"data": [
		{"id": "30", "text": "#3 mystery location, go find it!", "created_at": "2026-10-01T12:00:00Z", "attachments": {"media_keys": ["m3"]}},
		{"id": "99", "text": "thanks for playing"},
		{"id": "20", "text": "#2 found by bob", "created_at": "2026-09-20T12:00:00Z", "attachments": {"media_keys": ["m2a", "m2b"]}}
	],
	"includes": {"media": [
		{"media_key": "m3", "url": "https://pbs.twimg.com/m3.jpg"},
		{"media_key": "m2a", "url": "https://pbs.twimg.com/m2a.jpg"},
		{"media_key": "m2b", "url": "https://pbs.twimg.com/m2b.jpg"}
	]}
}`

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "from:biketagboise", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(recent))
	}))
	t.Cleanup(srv.Close)
	client := transport.Authed(backend.KindTwitter.String(), srv.URL+"/2", nil,
		transport.WithRetry(transport.NoRetry()), transport.WithLogger(logging.Discard()))
	return NewFromClient(client, "@biketagboise")
}

func TestNew(t *testing.T) {
	_, err := New(config.TwitterCredentials{Account: "x"})
	require.ErrorIs(t, err, backend.ErrConfigurationInvalid)

	a, err := New(config.TwitterCredentials{Account: "x", BearerToken: "b"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, a.Client().BaseURL())
}

func TestGetTag(t *testing.T) {
	a := newTestAdapter(t)

	res, err := a.GetTag(context.Background(), backend.Options{Game: "boise", TagNumber: 2}, backend.Capabilities{})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorMessage())
	assert.Equal(t, "https://pbs.twimg.com/m2a.jpg", res.Data.MysteryImageURL)
	assert.Equal(t, "https://pbs.twimg.com/m2b.jpg", res.Data.FoundImageURL)
	assert.Equal(t, "https://twitter.com/biketagboise/status/20", res.Data.MentionURL)

	latest, err := a.GetTag(context.Background(), backend.Options{Game: "boise", Slug: backend.LatestSlug}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Data.TagNumber)

	missing, err := a.GetTag(context.Background(), backend.Options{Game: "boise", TagNumber: 8}, backend.Capabilities{})
	require.NoError(t, err)
	assert.ErrorIs(t, missing.Error, backend.ErrNotFound)
}

func TestGetTags(t *testing.T) {
	a := newTestAdapter(t)

	res, err := a.GetTags(context.Background(), backend.Options{Game: "boise"}, backend.Capabilities{})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, 2, res.Data[0].TagNumber)
	assert.Equal(t, 3, res.Data[1].TagNumber)
}

func TestAccountRequired(t *testing.T) {
	a := NewFromClient(transport.Plain("twitter", "http://unused"), "")

	res, err := a.GetTags(context.Background(), backend.Options{}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestReadOnly(t *testing.T) {
	a := newTestAdapter(t)

	res, err := a.DeleteTag(context.Background(), backend.Options{}, backend.Capabilities{})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Error, backend.ErrNotSupported)

	game, err := a.GetGame(context.Background(), backend.Options{}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, game.Status)
}
