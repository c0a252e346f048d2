// Package biketag is a client for BikeTag game data spread across several
// backends: the native BikeTag API, Sanity, Imgur, Reddit, and Twitter.
//
// Each call is routed to one backend. The caller may name it; otherwise the
// client uses the most available configured backend and keeps using it until
// the configuration is reinitialized. Every domain operation returns a
// backend.Envelope; adapter errors and panics become failure envelopes with
// status 500.
package biketag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/biketag-game/biketag-go/internal/backend"
	biketagapi "github.com/biketag-game/biketag-go/internal/backend/biketag"
	"github.com/biketag-game/biketag-go/internal/backend/imgur"
	"github.com/biketag-game/biketag-go/internal/backend/reddit"
	"github.com/biketag-game/biketag-go/internal/backend/sanity"
	"github.com/biketag-game/biketag-go/internal/backend/twitter"
	"github.com/biketag-game/biketag-go/internal/cache"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/realtime"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// Errors returned by the client. The backend sentinels are re-exported so
// callers can match envelope errors with errors.Is.
var (
	ErrConfigurationInvalid = backend.ErrConfigurationInvalid
	ErrNoBackendAvailable   = backend.ErrNoBackendAvailable
	ErrNotConfigured        = backend.ErrNotConfigured
	ErrNotImplemented       = backend.ErrNotImplemented
	ErrNotSupported         = backend.ErrNotSupported
	ErrNotFound             = backend.ErrNotFound

	// ErrPanic wraps a value recovered from a panicking adapter.
	ErrPanic = errors.New("adapter panicked")
)

// Client is the BikeTag facade. It is safe for concurrent domain operations;
// Configure must be serialized against them.
type Client struct {
	mu        sync.RWMutex
	cfg       config.Configuration
	built     config.Configuration // records the live adapters were built from
	adapters  map[backend.Kind]backend.Adapter
	factories map[backend.Kind]Factory
	selector  *Selector

	transport []transport.Option
	cache     *cache.Cache
	realtime  realtime.Options

	plain  *transport.Client
	authed *transport.Client
	cached *transport.Client
}

// Option configures a Client.
type Option func(*Client)

// WithFactory replaces the adapter factory for kind.
func WithFactory(kind backend.Kind, f Factory) Option {
	return func(c *Client) {
		c.factories[kind] = f
	}
}

// WithTransport adds options to every HTTP client the facade builds.
func WithTransport(opts ...transport.Option) Option {
	return func(c *Client) {
		c.transport = append(c.transport, opts...)
	}
}

// WithCache sets the response cache used by CachedRequest.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) {
		if rc != nil {
			c.cache = rc
		}
	}
}

// WithRealtime sets the options used when Data dials the realtime peer.
func WithRealtime(o realtime.Options) Option {
	return func(c *Client) {
		c.realtime = o
	}
}

// New creates a client and builds adapters for every ready record in cfg.
func New(cfg config.Configuration, opts ...Option) *Client {
	c := &Client{
		adapters: make(map[backend.Kind]backend.Adapter),
		cache:    cache.New("", cache.DefaultTTL),
	}
	c.factories = c.defaultFactories()
	c.selector = NewSelector(c.readyLocked)
	for _, opt := range opts {
		opt(c)
	}

	host, headers := biketagapi.DefaultHost, map[string]string{}
	if cfg.BikeTag != nil {
		host = cmp.Or(cfg.BikeTag.Host, host)
		headers[biketagapi.KeyHeader] = cfg.BikeTag.APIKey
	}
	c.plain = transport.Plain("plain", "", append([]transport.Option{transport.WithHeader("User-Agent", transport.UserAgent)}, c.transport...)...)
	c.authed = transport.Authed("api", host, headers, c.transport...)
	c.cached = transport.Cached("api-cached", host, headers, c.cache, c.transport...)

	c.Configure(cfg, true, true)
	return c
}

// MostAvailable returns the backend used when a call doesn't name one.
func (c *Client) MostAvailable() backend.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selector.MostAvailable()
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

type method[T any] func(backend.Adapter, context.Context, Options, backend.Capabilities) (backend.Envelope[T], error)

// invoke resolves and runs one domain operation. Resolution failures keep
// their mapped status; adapter errors and panics become status 500.
func invoke[T any](ctx context.Context, c *Client, op Operation, arg Arg, kind CallKind, overloads []Options, m method[T]) (env backend.Envelope[T]) {
	var cl call
	defer func() {
		if r := recover(); r != nil {
			env = backend.Fail[T](cl.source, http.StatusInternalServerError, fmt.Errorf("%w: %s: %v", ErrPanic, op, r))
		}
	}()

	var over Options
	for _, o := range overloads {
		over = over.Merge(o)
	}

	cl, err := c.resolve(arg, kind, over, op)
	if err != nil {
		return backend.Fail[T](cl.source, backend.StatusFor(err), err)
	}

	env, err = m(cl.adapter, ctx, cl.opts, cl.caps)
	if err != nil {
		return backend.Fail[T](cl.source, http.StatusInternalServerError, err)
	}
	if env.Source == backend.KindNone {
		env.Source = cl.source
	}
	if !env.Success && env.Error == nil {
		env = backend.Fail[T](env.Source, cmp.Or(env.Status, http.StatusInternalServerError), fmt.Errorf("%s: failed without an error", op))
	}
	return env
}

// GetGame fetches a game. Game lookups go to Sanity unless an overload names
// another source.
func (c *Client) GetGame(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[*backend.Game] {
	over := append([]Options{{Source: backend.KindSanity}}, overloads...)
	return invoke(ctx, c, OpGetGame, arg, CallGame, over, backend.Adapter.GetGame)
}

// GetTag fetches one tag. A nil arg fetches the latest tag of the configured game.
func (c *Client) GetTag(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[*backend.Tag] {
	return invoke(ctx, c, OpGetTag, arg, CallTag, overloads, backend.Adapter.GetTag)
}

// GetTags fetches several tags.
func (c *Client) GetTags(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[[]*backend.Tag] {
	return invoke(ctx, c, OpGetTags, arg, CallTag, overloads, backend.Adapter.GetTags)
}

// UpdateTag updates a tag. The new field values travel in Options.Tag.
func (c *Client) UpdateTag(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[bool] {
	return invoke(ctx, c, OpUpdateTag, arg, CallTag, overloads, backend.Adapter.UpdateTag)
}

// UploadTagImage uploads Options.Image for a tag.
func (c *Client) UploadTagImage(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[*backend.Upload] {
	return invoke(ctx, c, OpUploadTagImage, arg, CallTag, overloads, backend.Adapter.UploadTagImage)
}

// DeleteTag deletes one tag.
func (c *Client) DeleteTag(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[bool] {
	return invoke(ctx, c, OpDeleteTag, arg, CallTag, overloads, backend.Adapter.DeleteTag)
}

// DeleteTags deletes several tags.
func (c *Client) DeleteTags(ctx context.Context, arg Arg, overloads ...Options) backend.Envelope[[]bool] {
	return invoke(ctx, c, OpDeleteTags, arg, CallTag, overloads, backend.Adapter.DeleteTags)
}

// ImportTag is not implemented and always fails.
func (c *Client) ImportTag(context.Context, Arg) (backend.Envelope[[]*backend.Tag], error) {
	return backend.Envelope[[]*backend.Tag]{}, fmt.Errorf("%w: importTag", ErrNotImplemented)
}

// GetPlayer is not implemented.
func (c *Client) GetPlayer(context.Context) error {
	return fmt.Errorf("%w: getPlayer", ErrNotImplemented)
}

// GetAmbassador is not implemented.
func (c *Client) GetAmbassador(context.Context) error {
	return fmt.Errorf("%w: getAmbassador", ErrNotImplemented)
}

// GetSetting is not implemented.
func (c *Client) GetSetting(context.Context) error {
	return fmt.Errorf("%w: getSetting", ErrNotImplemented)
}

// accessorCreds returns the first override, or a copy of the stored record.
func accessorCreds[T any](c *Client, stored func(config.Configuration) *T, override []T) *T {
	if len(override) > 0 {
		v := override[0]
		return &v
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p := stored(c.cfg); p != nil {
		v := *p
		return &v
	}
	return nil
}

func invalid(kind backend.Kind) error {
	return fmt.Errorf("%w: options are invalid for creating a %s client", ErrConfigurationInvalid, kind)
}

// Content returns a Sanity client built from override or the stored record.
func (c *Client) Content(override ...config.SanityCredentials) (*sanity.Adapter, error) {
	creds := accessorCreds(c, func(cfg config.Configuration) *config.SanityCredentials { return cfg.Sanity }, override)
	if !creds.Valid() {
		return nil, invalid(backend.KindSanity)
	}
	return sanity.New(*creds, c.transport...)
}

// Images returns an Imgur client built from override or the stored record.
func (c *Client) Images(override ...config.ImgurCredentials) (*imgur.Adapter, error) {
	creds := accessorCreds(c, func(cfg config.Configuration) *config.ImgurCredentials { return cfg.Imgur }, override)
	if !creds.Valid() {
		return nil, invalid(backend.KindImgur)
	}
	return imgur.New(*creds, c.transport...)
}

// Discussions returns a Reddit client built from override or the stored record.
func (c *Client) Discussions(override ...config.RedditCredentials) (*reddit.Adapter, error) {
	creds := accessorCreds(c, func(cfg config.Configuration) *config.RedditCredentials { return cfg.Reddit }, override)
	if !creds.Valid() {
		return nil, invalid(backend.KindReddit)
	}
	return reddit.New(*creds, c.transport...)
}

// Mentions returns a Twitter client built from override or the stored record.
func (c *Client) Mentions(override ...config.TwitterCredentials) (*twitter.Adapter, error) {
	creds := accessorCreds(c, func(cfg config.Configuration) *config.TwitterCredentials { return cfg.Twitter }, override)
	if !creds.Valid() {
		return nil, invalid(backend.KindTwitter)
	}
	return twitter.New(*creds, c.transport...)
}

// Data dials the realtime peer named by override or the stored BikeTag
// record. The caller owns the returned client and must Close it.
func (c *Client) Data(ctx context.Context, override ...config.BikeTagCredentials) (*realtime.Client, error) {
	creds := accessorCreds(c, func(cfg config.Configuration) *config.BikeTagCredentials { return cfg.BikeTag }, override)
	if !creds.Valid() || creds.Peer == "" {
		return nil, invalid(backend.KindBikeTag)
	}
	return realtime.Dial(ctx, creds.Peer, c.realtime)
}

// PlainRequest issues an unauthenticated, uncached request.
func (c *Client) PlainRequest(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return c.plain.Do(ctx, req)
}

// Request issues a request against the BikeTag API prefix.
func (c *Client) Request(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return c.authed.Do(ctx, req)
}

// CachedRequest is Request with GET and HEAD responses cached for the cache TTL.
func (c *Client) CachedRequest(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return c.cached.Do(ctx, req)
}
