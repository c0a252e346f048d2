package biketag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
)

func TestNew_BuildsReadyAdapters(t *testing.T) {
	h := newHarness(t, config.Configuration{
		Sanity: readySanity(),
		Imgur:  &config.ImgurCredentials{Hash: "no-client-id"},
		Reddit: &config.RedditCredentials{ClientID: "rid"},
	})

	assert.Equal(t, 1, h.builds[backend.KindSanity])
	assert.Zero(t, h.builds[backend.KindImgur], "ill-formed record")
	assert.Zero(t, h.builds[backend.KindReddit], "incomplete record")
	assert.True(t, h.client.Ready(backend.KindSanity))
	assert.False(t, h.client.Ready(backend.KindReddit))
}

func TestConfigure_Overwrite(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	got := h.client.Configure(config.Configuration{Imgur: &config.ImgurCredentials{ClientID: "other"}}, true, false)
	require.NotNil(t, got.Imgur)
	assert.Equal(t, "other", got.Imgur.ClientID)
	assert.Empty(t, got.Imgur.Hash, "overwrite replaces the whole record")
}

func TestConfigure_FillMissing(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	got := h.client.Configure(config.Configuration{
		Imgur:  &config.ImgurCredentials{ClientID: "other", AccessToken: "tok"},
		Sanity: readySanity(),
	}, false, false)

	assert.Equal(t, "cid", got.Imgur.ClientID, "existing fields win")
	assert.Equal(t, "abc123", got.Imgur.Hash)
	assert.Equal(t, "tok", got.Imgur.AccessToken, "missing fields are filled")
	assert.Equal(t, readySanity(), got.Sanity, "absent records take the incoming one")
}

func TestConfigure_AbsentIncomingKeepsStored(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	got := h.client.Configure(config.Configuration{}, true, true)
	assert.Equal(t, readyImgur(), got.Imgur)
	assert.Equal(t, 1, h.builds[backend.KindImgur])
}

func TestConfigure_ChangeDetection(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur(), Sanity: readySanity()})
	require.Equal(t, 1, h.builds[backend.KindImgur])
	require.Equal(t, 1, h.builds[backend.KindSanity])

	// Equal by value, different pointers.
	h.client.Configure(config.Configuration{Imgur: readyImgur(), Sanity: readySanity()}, true, true)
	assert.Equal(t, 1, h.builds[backend.KindImgur])
	assert.Equal(t, 1, h.builds[backend.KindSanity])

	changed := readyImgur()
	changed.Hash = "xyz789"
	h.client.Configure(config.Configuration{Imgur: changed}, true, true)
	assert.Equal(t, 2, h.builds[backend.KindImgur])
	assert.Equal(t, 1, h.builds[backend.KindSanity])
}

func TestConfigure_WithoutReinitializeKeepsAdapters(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	changed := readyImgur()
	changed.Hash = "xyz789"
	h.client.Configure(config.Configuration{Imgur: changed}, true, false)

	assert.Equal(t, 1, h.builds[backend.KindImgur])
	assert.Equal(t, "xyz789", h.client.Config().Imgur.Hash)
}

func TestConfigure_ReinitializeAfterDeferredChange(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	changed := readyImgur()
	changed.Hash = "xyz789"
	h.client.Configure(config.Configuration{Imgur: changed}, true, false)
	require.Equal(t, 1, h.builds[backend.KindImgur])

	// The stored record already equals changed, but the live adapter was
	// built from the old one.
	h.client.Configure(config.Configuration{Imgur: changed}, true, true)
	assert.Equal(t, 2, h.builds[backend.KindImgur])
	rec, ok := h.records[backend.KindImgur].(*config.ImgurCredentials)
	require.True(t, ok)
	assert.Equal(t, "xyz789", rec.Hash)

	h.client.Configure(config.Configuration{Imgur: changed}, true, true)
	assert.Equal(t, 2, h.builds[backend.KindImgur])
}

func TestConfigure_InvalidRecordClearsAdapter(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur(), Sanity: readySanity()})
	require.True(t, h.client.Ready(backend.KindImgur))

	h.client.Configure(config.Configuration{Imgur: &config.ImgurCredentials{Hash: "abc123"}}, true, true)
	assert.False(t, h.client.Ready(backend.KindImgur))
	assert.Equal(t, backend.KindSanity, h.client.MostAvailable(), "selector is invalidated")

	res := h.client.GetTag(t.Context(), TagNumber(1), Options{Source: backend.KindImgur})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, ErrNotConfigured)
	assert.Equal(t, backend.KindImgur, res.Source)
}

func TestConfigure_ReturnsCopy(t *testing.T) {
	h := newHarness(t, config.Configuration{Imgur: readyImgur()})

	got := h.client.Configure(config.Configuration{}, true, false)
	got.Imgur.Hash = "mutated"
	assert.Equal(t, "abc123", h.client.Config().Imgur.Hash)
}

func TestSelection_StickyAcrossConfigure(t *testing.T) {
	h := newHarness(t, config.Configuration{Reddit: readyReddit(), Twitter: readyTwitter()})
	assert.Equal(t, backend.KindReddit, h.client.MostAvailable())

	h.client.Configure(config.Configuration{Sanity: readySanity()}, true, false)
	assert.Equal(t, backend.KindReddit, h.client.MostAvailable(), "no reinitialize, no change")

	h.client.Configure(config.Configuration{Sanity: readySanity()}, true, true)
	assert.Equal(t, backend.KindSanity, h.client.MostAvailable())
}

func TestSelection_BikeTagFirst(t *testing.T) {
	h := newHarness(t, config.Configuration{
		BikeTag: readyBikeTag(),
		Sanity:  readySanity(),
		Imgur:   readyImgur(),
		Reddit:  readyReddit(),
		Twitter: readyTwitter(),
	})
	assert.Equal(t, backend.KindBikeTag, h.client.MostAvailable())

	h = newHarness(t, config.Configuration{BikeTag: &config.BikeTagCredentials{Game: "boise"}, Imgur: readyImgur()})
	assert.Equal(t, backend.KindImgur, h.client.MostAvailable(), "biketag without an api key is not ready")
}
