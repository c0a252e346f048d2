package biketag

import (
	"github.com/biketag-game/biketag-go/internal/backend"
	biketagapi "github.com/biketag-game/biketag-go/internal/backend/biketag"
	"github.com/biketag-game/biketag-go/internal/backend/imgur"
	"github.com/biketag-game/biketag-go/internal/backend/reddit"
	"github.com/biketag-game/biketag-go/internal/backend/sanity"
	"github.com/biketag-game/biketag-go/internal/backend/twitter"
	"github.com/biketag-game/biketag-go/internal/config"
)

// Factory builds the adapter for a ready credential record of one kind.
type Factory func(rec config.Credentials) (backend.Adapter, error)

// defaultFactories builds the real HTTP adapters. None of them share the
// response cache; it only backs CachedRequest.
func (c *Client) defaultFactories() map[backend.Kind]Factory {
	return map[backend.Kind]Factory{
		backend.KindBikeTag: func(rec config.Credentials) (backend.Adapter, error) {
			return biketagapi.New(*rec.(*config.BikeTagCredentials), c.transport...)
		},
		backend.KindSanity: func(rec config.Credentials) (backend.Adapter, error) {
			return sanity.New(*rec.(*config.SanityCredentials), c.transport...)
		},
		backend.KindImgur: func(rec config.Credentials) (backend.Adapter, error) {
			return imgur.New(*rec.(*config.ImgurCredentials), c.transport...)
		},
		backend.KindReddit: func(rec config.Credentials) (backend.Adapter, error) {
			return reddit.New(*rec.(*config.RedditCredentials), c.transport...)
		},
		backend.KindTwitter: func(rec config.Credentials) (backend.Adapter, error) {
			return twitter.New(*rec.(*config.TwitterCredentials), c.transport...)
		},
	}
}

// pick resolves one record. Overwrite takes the incoming record when present.
// Fill-missing merges field by field with existing values winning.
func pick[T any](incoming, existing *T, overwrite bool, merge func(partial, existing *T) *T) *T {
	if !overwrite && incoming != nil && existing != nil {
		return merge(incoming, existing)
	}
	if incoming != nil {
		v := *incoming
		return &v
	}
	return existing
}

// resolveConfig merges partial into current.
func resolveConfig(current, partial config.Configuration, overwrite bool) config.Configuration {
	return config.Configuration{
		BikeTag: pick(partial.BikeTag, current.BikeTag, overwrite, config.NewBikeTagCredentials),
		Sanity:  pick(partial.Sanity, current.Sanity, overwrite, config.NewSanityCredentials),
		Imgur:   pick(partial.Imgur, current.Imgur, overwrite, config.NewImgurCredentials),
		Reddit:  pick(partial.Reddit, current.Reddit, overwrite, config.NewRedditCredentials),
		Twitter: pick(partial.Twitter, current.Twitter, overwrite, config.NewTwitterCredentials),
	}
}

// changedKinds lists the kinds whose records differ by value.
func changedKinds(a, b config.Configuration) []backend.Kind {
	var out []backend.Kind
	if !config.Equal(a.BikeTag, b.BikeTag) {
		out = append(out, backend.KindBikeTag)
	}
	if !config.Equal(a.Sanity, b.Sanity) {
		out = append(out, backend.KindSanity)
	}
	if !config.Equal(a.Imgur, b.Imgur) {
		out = append(out, backend.KindImgur)
	}
	if !config.Equal(a.Reddit, b.Reddit) {
		out = append(out, backend.KindReddit)
	}
	if !config.Equal(a.Twitter, b.Twitter) {
		out = append(out, backend.KindTwitter)
	}
	return out
}

// Configure merges partial into the stored configuration and returns the
// result. With reinitialize, adapters are rebuilt for exactly the kinds whose
// record differs from the one their live adapter was built from, and the
// selector's memoized choice is dropped. Without reinitialize, the stored
// configuration changes but the live adapters keep their old records until
// the next reinitializing call.
func (c *Client) Configure(partial config.Configuration, overwrite, reinitialize bool) config.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()

	resolved := resolveConfig(c.cfg, partial, overwrite)
	if reinitialize {
		for _, k := range changedKinds(c.built, resolved) {
			c.rebuildLocked(k, resolved.Record(k))
		}
		c.built = resolved.Clone()
		c.selector.Invalidate()
	}
	c.cfg = resolved
	return c.cfg.Clone()
}

// rebuildLocked replaces the adapter slot for k. An absent, ill-formed, or
// incomplete record clears the slot.
func (c *Client) rebuildLocked(k backend.Kind, rec config.Credentials) {
	delete(c.adapters, k)
	if rec == nil || !rec.Valid() || !rec.Ready() {
		return
	}
	f, ok := c.factories[k]
	if !ok {
		return
	}
	a, err := f(rec)
	if err != nil || a == nil {
		return
	}
	c.adapters[k] = a
}

// Config returns a copy of the stored configuration.
func (c *Client) Config() config.Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

// Ready reports whether calls can be routed to k: its record is configured and
// ready, and a live adapter exists.
func (c *Client) Ready(k backend.Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readyLocked(k)
}

func (c *Client) readyLocked(k backend.Kind) bool {
	rec := c.cfg.Record(k)
	return rec != nil && rec.Valid() && rec.Ready() && c.adapters[k] != nil
}

// defaultsLocked returns the values the normalizer fills from configuration.
func (c *Client) defaultsLocked() defaults {
	var d defaults
	if c.cfg.BikeTag != nil {
		d.Game = c.cfg.BikeTag.Game
	}
	if c.cfg.Imgur != nil {
		d.Hash = c.cfg.Imgur.Hash
	}
	if c.cfg.Reddit != nil {
		d.Subreddit = c.cfg.Reddit.Subreddit
	}
	if c.cfg.Twitter != nil {
		d.Account = c.cfg.Twitter.Account
	}
	return d
}
