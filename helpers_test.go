package biketag

import (
	"testing"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/backend/mock"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/transport"
)

func readyBikeTag() *config.BikeTagCredentials {
	return &config.BikeTagCredentials{Game: "boise", APIKey: "key"}
}

func readySanity() *config.SanityCredentials {
	return &config.SanityCredentials{ProjectID: "proj", Dataset: "production"}
}

func readyImgur() *config.ImgurCredentials {
	return &config.ImgurCredentials{ClientID: "cid", Hash: "abc123"}
}

func readyReddit() *config.RedditCredentials {
	return &config.RedditCredentials{ClientID: "rid", ClientSecret: "rs", Username: "u", Password: "p", Subreddit: "BikeTagBoise"}
}

func readyTwitter() *config.TwitterCredentials {
	return &config.TwitterCredentials{Account: "biketagboise", BearerToken: "bt"}
}

// harness builds a client whose factories produce mock adapters.
type harness struct {
	client *Client
	mocks   map[backend.Kind]*mock.Adapter
	builds  map[backend.Kind]int
	records map[backend.Kind]config.Credentials // record of the latest build
}

func newHarness(t *testing.T, cfg config.Configuration, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		mocks:   map[backend.Kind]*mock.Adapter{},
		builds:  map[backend.Kind]int{},
		records: map[backend.Kind]config.Credentials{},
	}
	all := []Option{WithTransport(transport.WithRetry(transport.NoRetry()), transport.WithLogger(logging.Discard()))}
	for _, k := range backend.Kinds() {
		all = append(all, WithFactory(k, func(rec config.Credentials) (backend.Adapter, error) {
			h.builds[k]++
			h.records[k] = rec
			m := mock.New(k)
			h.mocks[k] = m
			return m, nil
		}))
	}
	h.client = New(cfg, append(all, opts...)...)
	return h
}

func (h *harness) lastCall(t *testing.T, k backend.Kind) mock.Call {
	t.Helper()
	m, ok := h.mocks[k]
	if !ok {
		t.Fatalf("no %s adapter was built", k)
	}
	c, ok := m.LastCall()
	if !ok {
		t.Fatalf("%s adapter was not called", k)
	}
	return c
}
