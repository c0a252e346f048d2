// Package biketag implements backend.Adapter for the native BikeTag API.
package biketag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// DefaultHost is the public BikeTag API prefix.
const DefaultHost = "https://api.biketag.org/api"

// KeyHeader carries the API key.
const KeyHeader = "x-biketag-key"

// Adapter implements backend.Adapter for the native API.
type Adapter struct {
	client *transport.Client
	game   string
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an adapter from credentials.
func New(creds config.BikeTagCredentials, opts ...transport.Option) (*Adapter, error) {
	if !creds.Ready() {
		return nil, fmt.Errorf("%w: biketag game and api key are required", backend.ErrConfigurationInvalid)
	}
	host := creds.Host
	if host == "" {
		host = DefaultHost
	}
	client := transport.Authed(backend.KindBikeTag.String(), host, map[string]string{KeyHeader: creds.APIKey}, opts...)
	return NewFromClient(client, creds.Game), nil
}

// NewFromClient creates an adapter around an existing transport client.
// game is used when a call doesn't name one.
func NewFromClient(client *transport.Client, game string) *Adapter {
	return &Adapter{client: client, game: game}
}

// Kind returns backend.KindBikeTag.
func (a *Adapter) Kind() backend.Kind {
	return backend.KindBikeTag
}

// Client returns the underlying transport client.
func (a *Adapter) Client() *transport.Client {
	return a.client
}

// apiResponse is the API's wire envelope.
type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// call issues req and unwraps the wire envelope into a backend envelope.
func call[T any](ctx context.Context, c *transport.Client, req transport.Request) (backend.Envelope[T], error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			return backend.Fail[T](backend.KindBikeTag, se.Status, mapError(se.Status, apiMessage(resp), err)), nil
		}
		if ctx.Err() != nil {
			return backend.Envelope[T]{}, err
		}
		return transport.Fail[T](backend.KindBikeTag, err), nil
	}

	var out apiResponse[T]
	if err := resp.Decode(&out); err != nil {
		return backend.Envelope[T]{}, fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	if !out.Success {
		status := out.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return backend.Fail[T](backend.KindBikeTag, status, mapError(status, out.Error, nil)), nil
	}
	return backend.OK(backend.KindBikeTag, out.Data), nil
}

// apiMessage extracts the error text from an error response body, if any.
func apiMessage(resp *transport.Response) string {
	if resp == nil || len(resp.Body) == 0 {
		return ""
	}
	var out apiResponse[any]
	if err := resp.Decode(&out); err != nil {
		return ""
	}
	return out.Error
}

// mapError converts an API failure into a sentinel-wrapped error.
func mapError(status int, msg string, cause error) error {
	sentinel := backend.FromStatus(status)
	if sentinel == nil {
		sentinel = errors.New(http.StatusText(status))
	}
	switch {
	case msg != "":
		return fmt.Errorf("%w: %s", sentinel, msg)
	case cause != nil && !errors.Is(cause, sentinel):
		return fmt.Errorf("%w: %w", sentinel, cause)
	case cause != nil:
		return cause
	default:
		return sentinel
	}
}

func (a *Adapter) gameOf(opts backend.Options) string {
	if opts.Game != "" {
		return opts.Game
	}
	return a.game
}

func (a *Adapter) tagPath(opts backend.Options) string {
	return "/tag/" + url.PathEscape(a.gameOf(opts)) + "/" + strconv.Itoa(opts.TagNumber)
}

// GetTag fetches one tag by slug, falling back to the tag number.
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	key := opts.Slug
	if key == "" {
		if opts.TagNumber == 0 {
			return backend.Fail[*backend.Tag](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: slug or tag number required", backend.ErrInvalidRequest)), nil
		}
		key = backend.TagSlug(a.gameOf(opts), opts.TagNumber)
	}
	return call[*backend.Tag](ctx, a.client, transport.Request{
		Method: http.MethodGet,
		Path:   "/tag/" + url.PathEscape(a.gameOf(opts)) + "/" + url.PathEscape(key),
	})
}

// GetTags lists tags for the game, optionally filtered by number.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	q := url.Values{}
	for _, n := range opts.TagNumbers {
		q.Add("tagnumbers", strconv.Itoa(n))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	return call[[]*backend.Tag](ctx, a.client, transport.Request{
		Method: http.MethodGet,
		Path:   "/tags/" + url.PathEscape(a.gameOf(opts)),
		Query:  q,
	})
}

// UpdateTag replaces the stored tag fields with opts.Tag.
func (a *Adapter) UpdateTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[bool], error) {
	if opts.Tag == nil || opts.TagNumber == 0 {
		return backend.Fail[bool](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: tag number and tag required", backend.ErrInvalidRequest)), nil
	}
	return call[bool](ctx, a.client, transport.Request{Method: http.MethodPut, Path: a.tagPath(opts), Body: opts.Tag})
}

// UploadTagImage posts the raw image bytes.
func (a *Adapter) UploadTagImage(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
	if opts.Image == nil || len(opts.Image.Data) == 0 || opts.TagNumber == 0 {
		return backend.Fail[*backend.Upload](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: tag number and image required", backend.ErrInvalidRequest)), nil
	}
	contentType := opts.Image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	q := url.Values{"type": {opts.Image.Type}}
	if opts.Image.Name != "" {
		q.Set("name", opts.Image.Name)
	}
	return call[*backend.Upload](ctx, a.client, transport.Request{
		Method:      http.MethodPost,
		Path:        a.tagPath(opts) + "/image",
		Query:       q,
		Body:        opts.Image.Data,
		ContentType: contentType,
	})
}

// DeleteTag removes one tag.
func (a *Adapter) DeleteTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[bool], error) {
	if opts.TagNumber == 0 {
		return backend.Fail[bool](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: tag number required", backend.ErrInvalidRequest)), nil
	}
	return call[bool](ctx, a.client, transport.Request{Method: http.MethodDelete, Path: a.tagPath(opts)})
}

// DeleteTags removes the listed tags.
func (a *Adapter) DeleteTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]bool], error) {
	if len(opts.TagNumbers) == 0 {
		return backend.Fail[[]bool](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: no tag numbers to delete", backend.ErrInvalidRequest)), nil
	}
	q := url.Values{}
	for _, n := range opts.TagNumbers {
		q.Add("tagnumbers", strconv.Itoa(n))
	}
	return call[[]bool](ctx, a.client, transport.Request{
		Method: http.MethodDelete,
		Path:   "/tags/" + url.PathEscape(a.gameOf(opts)),
		Query:  q,
	})
}

// GetGame fetches the game record.
func (a *Adapter) GetGame(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	name := opts.Slug
	if name == "" {
		name = a.gameOf(opts)
	}
	if name == "" {
		return backend.Fail[*backend.Game](backend.KindBikeTag, http.StatusBadRequest, fmt.Errorf("%w: game required", backend.ErrInvalidRequest)), nil
	}
	return call[*backend.Game](ctx, a.client, transport.Request{Method: http.MethodGet, Path: "/game/" + url.PathEscape(name)})
}
