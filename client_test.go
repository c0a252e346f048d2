package biketag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/transport"
)

func TestGetTag_RoutesToMostAvailable(t *testing.T) {
	h := newHarness(t, config.Configuration{
		BikeTag: &config.BikeTagCredentials{Game: "boise"},
		Imgur:   readyImgur(),
	})
	h.mocks[backend.KindImgur].AddTag(backend.Tag{Game: "boise", TagNumber: 5, Slug: "boise-tag-5"})

	res := h.client.GetTag(t.Context(), TagNumber(5))
	require.True(t, res.Success, res.ErrorMessage())
	assert.Equal(t, backend.KindImgur, res.Source)
	assert.Equal(t, 5, res.Data.TagNumber)

	call := h.lastCall(t, backend.KindImgur)
	assert.Equal(t, Options{
		Game:      "boise",
		Slug:      "boise-tag-5",
		TagNumber: 5,
		Source:    backend.KindImgur,
		Hash:      "abc123",
	}, call.Options)
}

func TestGetGame_DefaultsToSanity(t *testing.T) {
	h := newHarness(t, config.Configuration{Sanity: readySanity(), Imgur: readyImgur()})
	h.mocks[backend.KindSanity].AddGame(backend.Game{Name: "Boise", Slug: "boise"})

	res := h.client.GetGame(t.Context(), Slug("boise"))
	require.True(t, res.Success, res.ErrorMessage())
	assert.Equal(t, "Boise", res.Data.Name)
	assert.Equal(t, Options{Game: "boise", Slug: "boise", Source: backend.KindSanity}, h.lastCall(t, backend.KindSanity).Options)

	h.client.GetGame(t.Context(), Slug("boise"), Options{Source: backend.KindImgur})
	assert.Equal(t, backend.KindImgur, h.lastCall(t, backend.KindImgur).Options.Source)
}

func TestGetGame_SanityMissing(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	res := h.client.GetGame(t.Context(), Slug("boise"))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, backend.KindSanity, res.Source)
	assert.ErrorIs(t, res.Error, ErrNotConfigured)
}

func TestNotImplemented(t *testing.T) {
	for name, cfg := range map[string]config.Configuration{
		"empty": {},
		"full": {
			BikeTag: readyBikeTag(),
			Sanity:  readySanity(),
			Imgur:   readyImgur(),
			Reddit:  readyReddit(),
			Twitter: readyTwitter(),
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, cfg)
			ctx := t.Context()
			assert.ErrorIs(t, h.client.GetPlayer(ctx), ErrNotImplemented)
			assert.ErrorIs(t, h.client.GetAmbassador(ctx), ErrNotImplemented)
			assert.ErrorIs(t, h.client.GetSetting(ctx), ErrNotImplemented)

			_, err := h.client.ImportTag(ctx, TagNumber(1))
			assert.ErrorIs(t, err, ErrNotImplemented)
		})
	}
}

func TestNoBackendAvailable(t *testing.T) {
	h := newHarness(t, config.Configuration{})

	res := h.client.GetTag(t.Context(), TagNumber(1))
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, backend.KindNone, res.Source)
	assert.ErrorIs(t, res.Error, ErrNoBackendAvailable)
}

func TestNamedSourceNotConfigured(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	res := h.client.DeleteTag(t.Context(), TagNumber(1), Options{Source: backend.KindTwitter})
	assert.Equal(t, backend.KindTwitter, res.Source)
	assert.ErrorIs(t, res.Error, ErrNotConfigured)
}

// failingAll makes every operation of the imgur mock return err.
func failingAll(h *harness, err error) {
	m := h.mocks[backend.KindImgur]
	m.GetTagFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
		return backend.Envelope[*backend.Tag]{}, err
	}
	m.GetTagsFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
		return backend.Envelope[[]*backend.Tag]{}, err
	}
	m.UpdateTagFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[bool], error) {
		return backend.Envelope[bool]{}, err
	}
	m.UploadTagImageFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
		return backend.Envelope[*backend.Upload]{}, err
	}
	m.DeleteTagFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[bool], error) {
		return backend.Envelope[bool]{}, err
	}
	m.DeleteTagsFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[[]bool], error) {
		return backend.Envelope[[]bool]{}, err
	}
	m.GetGameFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[*backend.Game], error) {
		return backend.Envelope[*backend.Game]{}, err
	}
}

type outcome struct {
	status  int
	success bool
	err     error
	source  backend.Kind
	zero    bool
}

func runAll(h *harness) map[string]outcome {
	ctx := context.Background()
	imgur := Options{Source: backend.KindImgur}
	out := map[string]outcome{}

	r1 := h.client.GetGame(ctx, Slug("boise"), imgur)
	out["GetGame"] = outcome{r1.Status, r1.Success, r1.Error, r1.Source, r1.Data == nil}
	r2 := h.client.GetTag(ctx, TagNumber(1))
	out["GetTag"] = outcome{r2.Status, r2.Success, r2.Error, r2.Source, r2.Data == nil}
	r3 := h.client.GetTags(ctx, TagNumbers{1, 2})
	out["GetTags"] = outcome{r3.Status, r3.Success, r3.Error, r3.Source, r3.Data == nil}
	r4 := h.client.UpdateTag(ctx, TagNumber(1), Options{Tag: &backend.Tag{Hint: "h"}})
	out["UpdateTag"] = outcome{r4.Status, r4.Success, r4.Error, r4.Source, !r4.Data}
	r5 := h.client.UploadTagImage(ctx, TagNumber(1), Options{Image: &backend.Image{Data: []byte{1}}})
	out["UploadTagImage"] = outcome{r5.Status, r5.Success, r5.Error, r5.Source, r5.Data == nil}
	r6 := h.client.DeleteTag(ctx, TagNumber(1))
	out["DeleteTag"] = outcome{r6.Status, r6.Success, r6.Error, r6.Source, !r6.Data}
	r7 := h.client.DeleteTags(ctx, TagNumbers{1})
	out["DeleteTags"] = outcome{r7.Status, r7.Success, r7.Error, r7.Source, r7.Data == nil}
	return out
}

func TestAdapterErrorsBecomeEnvelopes(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})
	boom := errors.New("boom")
	failingAll(h, boom)

	for op, o := range runAll(h) {
		t.Run(op, func(t *testing.T) {
			assert.Equal(t, http.StatusInternalServerError, o.status)
			assert.False(t, o.success)
			assert.ErrorIs(t, o.err, boom)
			assert.Equal(t, backend.KindImgur, o.source)
			assert.True(t, o.zero, "data is the zero value")
		})
	}
}

func TestAdapterPanicsBecomeEnvelopes(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})
	h.mocks[backend.KindImgur].GetTagFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
		panic("kaboom")
	}

	res := h.client.GetTag(t.Context(), TagNumber(1))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, backend.KindImgur, res.Source)
	require.ErrorIs(t, res.Error, ErrPanic)
	assert.Contains(t, res.Error.Error(), "kaboom")
}

func TestFailureWithoutErrorIsPatched(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})
	h.mocks[backend.KindImgur].DeleteTagFunc = func(context.Context, Options, backend.Capabilities) (backend.Envelope[bool], error) {
		return backend.Envelope[bool]{}, nil
	}

	res := h.client.DeleteTag(t.Context(), TagNumber(1))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Error(t, res.Error)
	assert.Equal(t, backend.KindImgur, res.Source)
}

func TestBackendFailurePassesThrough(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	res := h.client.GetTag(t.Context(), TagNumber(42))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.ErrorIs(t, res.Error, ErrNotFound)
}

func TestConcurrentCalls(t *testing.T) {
	h := newHarness(t, config.Configuration{BikeTag: &config.BikeTagCredentials{Game: "boise"}, Imgur: readyImgur()})
	h.mocks[backend.KindImgur].Seed("boise", 10)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.client.GetTag(context.Background(), TagNumber(i)).Success {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), ok.Load())
	assert.Len(t, h.mocks[backend.KindImgur].Calls, 10)
}

func TestAccessors_InvalidRecords(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: &config.ImgurCredentials{Hash: "no-client"}})

	_, err := h.client.Content()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = h.client.Images()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = h.client.Discussions()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = h.client.Mentions()
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
	_, err = h.client.Data(t.Context())
	assert.ErrorIs(t, err, ErrConfigurationInvalid)
}

func TestAccessors_Override(t *testing.T) {
	h := newHarness(t, config.Configuration{})

	img, err := h.client.Images(config.ImgurCredentials{ClientID: "cid", Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, backend.KindImgur, img.Kind())

	content, err := h.client.Content(*readySanity())
	require.NoError(t, err)
	assert.Equal(t, backend.KindSanity, content.Kind())

	tw, err := h.client.Mentions(*readyTwitter())
	require.NoError(t, err)
	assert.Equal(t, backend.KindTwitter, tw.Kind())

	_, err = h.client.Data(t.Context(), config.BikeTagCredentials{Game: "boise"})
	assert.ErrorIs(t, err, ErrConfigurationInvalid, "no realtime peer")
}

func TestRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `","key":"` + r.Header.Get("x-biketag-key") + `"}`))
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, config.Configuration{BikeTag: &config.BikeTagCredentials{Game: "boise", Host: srv.URL + "/api", APIKey: "secret"}})
	ctx := t.Context()

	var body struct{ Path, Key string }
	resp, err := h.client.Request(ctx, transport.Request{Path: "/games"})
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "/api/games", body.Path)
	assert.Equal(t, "secret", body.Key)

	resp, err = h.client.PlainRequest(ctx, transport.Request{Path: srv.URL + "/plain"})
	require.NoError(t, err)
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "/plain", body.Path)
	assert.Empty(t, body.Key)

	_, err = h.client.PlainRequest(ctx, transport.Request{Path: "relative"})
	assert.Error(t, err)

	before := hits.Load()
	first, err := h.client.CachedRequest(ctx, transport.Request{Path: "/tags/boise"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	second, err := h.client.CachedRequest(ctx, transport.Request{Path: "/tags/boise"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, before+1, hits.Load())
	assert.Equal(t, 1, h.client.Cache().Len())
}
