// Package twitter implements the read side of backend.Adapter on a game's
// account timeline. Tag tweets start with "#<n>" and carry the tag images as
// media attachments.
package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/stringutil"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// DefaultBaseURL is the v2 API prefix.
const DefaultBaseURL = "https://api.twitter.com/2"

const maxResults = "100"

// Adapter implements backend.Adapter for Twitter.
type Adapter struct {
	client  *transport.Client
	account string
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an adapter authenticated with an app bearer token.
func New(creds config.TwitterCredentials, opts ...transport.Option) (*Adapter, error) {
	if !creds.Ready() {
		return nil, fmt.Errorf("%w: twitter bearer token is required", backend.ErrConfigurationInvalid)
	}
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.BearerToken, TokenType: "Bearer"}))
	hc.Timeout = transport.DefaultTimeout
	client := transport.Authed(backend.KindTwitter.String(), DefaultBaseURL, nil,
		append([]transport.Option{transport.WithHTTPClient(hc)}, opts...)...)
	return NewFromClient(client, creds.Account), nil
}

// NewFromClient creates an adapter around an existing transport client.
// account is used when a call doesn't name one.
func NewFromClient(client *transport.Client, account string) *Adapter {
	return &Adapter{client: client, account: account}
}

// Kind returns backend.KindTwitter.
func (a *Adapter) Kind() backend.Kind {
	return backend.KindTwitter
}

// Client returns the underlying transport client.
func (a *Adapter) Client() *transport.Client {
	return a.client
}

type searchResponse struct {
	Data []struct {
		ID          string    `json:"id"`
		Text        string    `json:"text"`
		CreatedAt   time.Time `json:"created_at"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey string `json:"media_key"`
			URL      string `json:"url"`
		} `json:"media"`
	} `json:"includes"`
}

// search returns the account's recent tag tweets as tags, newest first.
func (a *Adapter) search(ctx context.Context, opts backend.Options) ([]*backend.Tag, error) {
	account := strings.TrimPrefix(opts.Account, "@")
	if account == "" {
		account = strings.TrimPrefix(a.account, "@")
	}
	if account == "" {
		return nil, fmt.Errorf("%w: twitter account required", backend.ErrInvalidRequest)
	}

	var out searchResponse
	err := a.client.Get(ctx, "/tweets/search/recent", url.Values{
		"query":        {"from:" + account},
		"max_results":  {maxResults},
		"expansions":   {"attachments.media_keys"},
		"media.fields": {"url"},
		"tweet.fields": {"created_at"},
	}, &out)
	if err != nil {
		return nil, err
	}

	media := map[string]string{}
	for _, m := range out.Includes.Media {
		media[m.MediaKey] = m.URL
	}

	tags := make([]*backend.Tag, 0, len(out.Data))
	for _, tw := range out.Data {
		text := strings.TrimSpace(tw.Text)
		if !strings.HasPrefix(text, "#") {
			continue
		}
		n, ok := stringutil.LeadingNumber(text)
		if !ok {
			continue
		}
		t := &backend.Tag{
			Game:        opts.Game,
			TagNumber:   n,
			Slug:        backend.TagSlug(opts.Game, n),
			MysteryTime: tw.CreatedAt.Unix(),
			MentionURL:  "https://twitter.com/" + account + "/status/" + tw.ID,
		}
		keys := tw.Attachments.MediaKeys
		if len(keys) > 0 {
			t.MysteryImageURL = media[keys[0]]
		}
		if len(keys) > 1 {
			t.FoundImageURL = media[keys[1]]
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// GetTag returns the tweet for one tag, or the newest for "latest".
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	tags, err := a.search(ctx, opts)
	if err != nil {
		return transport.Fail[*backend.Tag](backend.KindTwitter, err), nil
	}
	for _, t := range tags {
		if opts.Slug == backend.LatestSlug || t.TagNumber == opts.TagNumber {
			return backend.OK(backend.KindTwitter, t), nil
		}
	}
	return backend.Fail[*backend.Tag](backend.KindTwitter, http.StatusNotFound, fmt.Errorf("%w: tag %d", backend.ErrNotFound, opts.TagNumber)), nil
}

// GetTags returns the tweeted tags in ascending order.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	tags, err := a.search(ctx, opts)
	if err != nil {
		return transport.Fail[[]*backend.Tag](backend.KindTwitter, err), nil
	}
	if len(opts.TagNumbers) > 0 {
		tags = slices.DeleteFunc(tags, func(t *backend.Tag) bool { return !slices.Contains(opts.TagNumbers, t.TagNumber) })
	}
	slices.SortStableFunc(tags, func(x, y *backend.Tag) int { return x.TagNumber - y.TagNumber })
	tags = slices.CompactFunc(tags, func(x, y *backend.Tag) bool { return x.TagNumber == y.TagNumber })
	if opts.Limit > 0 && len(tags) > opts.Limit {
		tags = tags[:opts.Limit]
	}
	return backend.OK(backend.KindTwitter, tags), nil
}

func readOnly[T any](op string) backend.Envelope[T] {
	return backend.Fail[T](backend.KindTwitter, http.StatusNotImplemented, fmt.Errorf("%w: twitter %s", backend.ErrNotSupported, op))
}

// UpdateTag is not supported.
func (a *Adapter) UpdateTag(context.Context, backend.Options, backend.Capabilities) (backend.Envelope[bool], error) {
	return readOnly[bool]("update"), nil
}

// UploadTagImage is not supported.
func (a *Adapter) UploadTagImage(context.Context, backend.Options, backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
	return readOnly[*backend.Upload]("upload"), nil
}

// DeleteTag is not supported.
func (a *Adapter) DeleteTag(context.Context, backend.Options, backend.Capabilities) (backend.Envelope[bool], error) {
	return readOnly[bool]("delete"), nil
}

// DeleteTags is not supported.
func (a *Adapter) DeleteTags(context.Context, backend.Options, backend.Capabilities) (backend.Envelope[[]bool], error) {
	return readOnly[[]bool]("delete"), nil
}

// GetGame is not supported.
func (a *Adapter) GetGame(context.Context, backend.Options, backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	return readOnly[*backend.Game]("game lookup"), nil
}
