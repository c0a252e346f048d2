package sanity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/transport"
)

func newTestAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client := transport.Authed(backend.KindSanity.String(), srv.URL+"/v1", nil,
		transport.WithRetry(transport.NoRetry()), transport.WithLogger(logging.Discard()))
	return NewFromClient(client, "production")
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://abc.api.sanity.io/v"+DefaultAPIVersion, BaseURL(config.SanityCredentials{ProjectID: "abc"}))
	assert.Equal(t, "https://abc.apicdn.sanity.io/v2023-01-01", BaseURL(config.SanityCredentials{ProjectID: "abc", UseCDN: true, APIVersion: "v2023-01-01"}))
}

func TestNew(t *testing.T) {
	_, err := New(config.SanityCredentials{ProjectID: "abc"})
	require.ErrorIs(t, err, backend.ErrConfigurationInvalid)

	a, err := New(config.SanityCredentials{ProjectID: "abc", Dataset: "production", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, backend.KindSanity, a.Kind())
}

func TestTokenSentAsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		reply(w, queryResponse[*backend.Game]{Result: &backend.Game{Name: "Boise"}})
	}))
	defer srv.Close()

	a, err := New(config.SanityCredentials{ProjectID: "abc", Dataset: "production", Token: "tok"},
		transport.WithRetry(transport.NoRetry()), transport.WithLogger(logging.Discard()))
	require.NoError(t, err)
	_, err = a.Client().Do(context.Background(), transport.Request{Path: srv.URL + "/v1/data/query/production"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
}

func TestGetTag(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/query/production", r.URL.Path)
		q := r.URL.Query()
		switch q.Get("$id") {
		case `"boise-tag-2"`:
			assert.Equal(t, queryTag, q.Get("query"))
			reply(w, queryResponse[backend.Tag]{Result: backend.Tag{Game: "boise", TagNumber: 2, Slug: "boise-tag-2"}})
		default:
			_, _ = w.Write([]byte(`{"result":null}`))
		}
	})
	ctx := context.Background()

	res, err := a.GetTag(ctx, backend.Options{Game: "Boise", TagNumber: 2}, backend.Capabilities{})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorMessage())
	assert.Equal(t, "boise-tag-2", res.Data.Slug)

	missing, err := a.GetTag(ctx, backend.Options{Slug: "boise-tag-9"}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.Status)

	bad, err := a.GetTag(ctx, backend.Options{}, backend.Capabilities{})
	require.NoError(t, err)
	assert.ErrorIs(t, bad.Error, backend.ErrInvalidRequest)
}

func TestGetTag_Latest(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, queryLast, r.URL.Query().Get("query"))
		assert.Equal(t, `"boise"`, r.URL.Query().Get("$game"))
		reply(w, queryResponse[backend.Tag]{Result: backend.Tag{TagNumber: 12}})
	})

	res, err := a.GetTag(context.Background(), backend.Options{Game: "Boise", Slug: backend.LatestSlug}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Data.TagNumber)
}

func TestGetTags(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `[1,3]`, r.URL.Query().Get("$numbers"))
		reply(w, queryResponse[[]backend.Tag]{Result: []backend.Tag{{TagNumber: 1}, {TagNumber: 3}}})
	})

	res, err := a.GetTags(context.Background(), backend.Options{Game: "boise", TagNumbers: []int{1, 3}, Limit: 1}, backend.Capabilities{})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, 1, res.Data[0].TagNumber)
}

func TestUpdateTag_PatchesSetFields(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/mutate/production", r.URL.Path)
		var body struct {
			Mutations []struct {
				Patch struct {
					ID  string         `json:"id"`
					Set map[string]any `json:"set"`
				} `json:"patch"`
			} `json:"mutations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Mutations, 1)
		assert.Equal(t, "boise-tag-4", body.Mutations[0].Patch.ID)
		assert.Equal(t, map[string]any{"hint": "near the tree"}, body.Mutations[0].Patch.Set)
		reply(w, mutateResponse{TransactionID: "tx", Results: []mutateResult{{ID: "boise-tag-4", Operation: "update"}}})
	})

	res, err := a.UpdateTag(context.Background(), backend.Options{Game: "boise", TagNumber: 4, Tag: &backend.Tag{Hint: "near the tree"}}, backend.Capabilities{})
	require.NoError(t, err)
	assert.True(t, res.Data)
}

func TestDeleteTag_NoIdentity(t *testing.T) {
	a := newTestAdapter(t, func(http.ResponseWriter, *http.Request) {
		t.Error("unexpected request")
	})

	res, err := a.DeleteTag(context.Background(), backend.Options{Game: "boise"}, backend.Capabilities{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Status)
	assert.Error(t, res.Error)
}

func TestDeleteTag_DerivesSlug(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		reply(w, mutateResponse{Results: []mutateResult{{ID: "boise-tag-7", Operation: "delete"}}})
	})

	res, err := a.DeleteTag(context.Background(), backend.Options{Game: "Boise", TagNumber: 7}, backend.Capabilities{})
	require.NoError(t, err)
	assert.True(t, res.Data)
}

func TestDeleteTags(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		reply(w, mutateResponse{Results: []mutateResult{{ID: "boise-tag-1", Operation: "delete"}}})
	})

	res, err := a.DeleteTags(context.Background(), backend.Options{Game: "boise", TagNumbers: []int{1, 2}}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, res.Data)
}

func TestGetGame(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$name") == `"boise"` {
			reply(w, queryResponse[backend.Game]{Result: backend.Game{Name: "Boise", Slug: "boise"}})
			return
		}
		_, _ = w.Write([]byte(`{"result":null}`))
	})

	res, err := a.GetGame(context.Background(), backend.Options{Game: "boise"}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, "Boise", res.Data.Name)

	missing, err := a.GetGame(context.Background(), backend.Options{Game: "nowhere"}, backend.Capabilities{})
	require.NoError(t, err)
	assert.ErrorIs(t, missing.Error, backend.ErrNotFound)
}

func TestServerErrorBecomesEnvelope(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	res, err := a.GetGame(context.Background(), backend.Options{Game: "boise"}, backend.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.ErrorIs(t, res.Error, backend.ErrPermission)
}
