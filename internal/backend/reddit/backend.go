// Package reddit implements the read side of backend.Adapter on a game's
// subreddit. Tag posts are titled "[#<n>] ..."; their images are resolved
// through the image-host capability when one is bound.
package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/stringutil"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// Reddit endpoints.
const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	permalinkHost   = "https://www.reddit.com"
	listingLimit    = "100"
)

// Adapter implements backend.Adapter for Reddit.
type Adapter struct {
	client    *transport.Client
	subreddit string
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an adapter that authenticates as a script app.
func New(creds config.RedditCredentials, opts ...transport.Option) (*Adapter, error) {
	if !creds.Ready() {
		return nil, fmt.Errorf("%w: reddit client id, secret, username and password are required", backend.ErrConfigurationInvalid)
	}
	hc := oauth2.NewClient(context.Background(), TokenSource(creds, DefaultTokenURL))
	hc.Timeout = transport.DefaultTimeout
	client := transport.Authed(backend.KindReddit.String(), DefaultBaseURL, map[string]string{
		"User-Agent": userAgent(creds),
	}, append([]transport.Option{transport.WithHTTPClient(hc)}, opts...)...)
	return NewFromClient(client, creds.Subreddit), nil
}

// NewFromClient creates an adapter around an existing transport client.
// subreddit is used when a call doesn't name one.
func NewFromClient(client *transport.Client, subreddit string) *Adapter {
	return &Adapter{client: client, subreddit: subreddit}
}

func userAgent(creds config.RedditCredentials) string {
	if creds.UserAgent != "" {
		return creds.UserAgent
	}
	return transport.UserAgent
}

// passwordSource fetches a token with the resource-owner password grant.
type passwordSource struct {
	cfg       *oauth2.Config
	username  string
	password  string
	userAgent string
}

func (s passwordSource) Token() (*oauth2.Token, error) {
	hc := &http.Client{
		Timeout:   transport.DefaultTimeout,
		Transport: uaTransport{agent: s.userAgent, base: http.DefaultTransport},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	return s.cfg.PasswordCredentialsToken(ctx, s.username, s.password)
}

type uaTransport struct {
	agent string
	base  http.RoundTripper
}

func (t uaTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}

// TokenSource returns a cached token source that requests a new token from
// tokenURL only when the current one expires.
func TokenSource(creds config.RedditCredentials, tokenURL string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader},
	}
	return oauth2.ReuseTokenSource(nil, passwordSource{
		cfg:       cfg,
		username:  creds.Username,
		password:  creds.Password,
		userAgent: userAgent(creds),
	})
}

// Kind returns backend.KindReddit.
func (a *Adapter) Kind() backend.Kind {
	return backend.KindReddit
}

// Client returns the underlying transport client.
func (a *Adapter) Client() *transport.Client {
	return a.client
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

func (a *Adapter) sub(opts backend.Options) (string, bool) {
	s := opts.Subreddit
	if s == "" {
		s = a.subreddit
	}
	return strings.TrimPrefix(s, "r/"), s != ""
}

// posts returns the tag posts of the subreddit, newest first.
func (a *Adapter) posts(ctx context.Context, sub string, q string) ([]post, error) {
	path := "/r/" + url.PathEscape(sub) + "/new.json"
	query := url.Values{"limit": {listingLimit}, "raw_json": {"1"}}
	if q != "" {
		path = "/r/" + url.PathEscape(sub) + "/search.json"
		query.Set("q", q)
		query.Set("restrict_sr", "1")
		query.Set("sort", "new")
	}
	var out listing
	if err := a.client.Get(ctx, path, query, &out); err != nil {
		return nil, err
	}
	posts := make([]post, 0, len(out.Data.Children))
	for _, c := range out.Data.Children {
		if _, ok := tagNumber(c.Data.Title); ok {
			posts = append(posts, c.Data)
		}
	}
	return posts, nil
}

// tagNumber parses "[#<n>]" at the start of a post title.
func tagNumber(title string) (int, bool) {
	if !strings.HasPrefix(strings.TrimSpace(title), "[#") {
		return 0, false
	}
	return stringutil.LeadingNumber(title)
}

func (p post) tag(game string) *backend.Tag {
	n, _ := tagNumber(p.Title)
	return &backend.Tag{
		Game:          game,
		TagNumber:     n,
		Slug:          backend.TagSlug(game, n),
		FoundPlayer:   p.Author,
		FoundTime:     int64(p.CreatedUTC),
		DiscussionURL: permalinkHost + p.Permalink,
	}
}

// GetTag returns the discussion for one tag, enriched from the image host.
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	sub, ok := a.sub(opts)
	if !ok {
		return backend.Fail[*backend.Tag](backend.KindReddit, http.StatusBadRequest, fmt.Errorf("%w: subreddit required", backend.ErrInvalidRequest)), nil
	}

	q := ""
	if opts.Slug != backend.LatestSlug {
		if opts.TagNumber == 0 {
			return backend.Fail[*backend.Tag](backend.KindReddit, http.StatusBadRequest, fmt.Errorf("%w: tag number required", backend.ErrInvalidRequest)), nil
		}
		q = fmt.Sprintf(`title:"[#%d]"`, opts.TagNumber)
	}
	posts, err := a.posts(ctx, sub, q)
	if err != nil {
		return transport.Fail[*backend.Tag](backend.KindReddit, err), nil
	}

	var found *backend.Tag
	for _, p := range posts {
		if n, _ := tagNumber(p.Title); q == "" || n == opts.TagNumber {
			found = p.tag(opts.Game)
			break
		}
	}
	if found == nil {
		return backend.Fail[*backend.Tag](backend.KindReddit, http.StatusNotFound, fmt.Errorf("%w: tag %d in r/%s", backend.ErrNotFound, opts.TagNumber, sub)), nil
	}

	if caps.ImageHost != nil {
		img, err := caps.ImageHost.GetTag(ctx, opts.Merge(backend.Options{TagNumber: found.TagNumber, Slug: found.Slug}))
		if err != nil {
			return backend.Envelope[*backend.Tag]{}, err
		}
		if img.Success {
			merged := img.Data.Apply(backend.Tag{DiscussionURL: found.DiscussionURL})
			found = &merged
		}
	}
	return backend.OK(backend.KindReddit, found), nil
}

// GetTags returns the discussed tags in ascending order, enriched from the
// image host when bound.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	sub, ok := a.sub(opts)
	if !ok {
		return backend.Fail[[]*backend.Tag](backend.KindReddit, http.StatusBadRequest, fmt.Errorf("%w: subreddit required", backend.ErrInvalidRequest)), nil
	}
	posts, err := a.posts(ctx, sub, "")
	if err != nil {
		return transport.Fail[[]*backend.Tag](backend.KindReddit, err), nil
	}

	byNumber := map[int]*backend.Tag{}
	for _, p := range posts {
		t := p.tag(opts.Game)
		if len(opts.TagNumbers) > 0 && !slices.Contains(opts.TagNumbers, t.TagNumber) {
			continue
		}
		if _, dup := byNumber[t.TagNumber]; !dup {
			byNumber[t.TagNumber] = t
		}
	}

	if caps.ImageHost != nil && len(byNumber) > 0 {
		imgs, err := caps.ImageHost.GetTags(ctx, opts)
		if err != nil {
			return backend.Envelope[[]*backend.Tag]{}, err
		}
		if imgs.Success {
			for _, img := range imgs.Data {
				if t, ok := byNumber[img.TagNumber]; ok {
					merged := img.Apply(backend.Tag{DiscussionURL: t.DiscussionURL})
					byNumber[img.TagNumber] = &merged
				}
			}
		}
	}

	tags := make([]*backend.Tag, 0, len(byNumber))
	for _, t := range byNumber {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(x, y *backend.Tag) int { return x.TagNumber - y.TagNumber })
	if opts.Limit > 0 && len(tags) > opts.Limit {
		tags = tags[:opts.Limit]
	}
	return backend.OK(backend.KindReddit, tags), nil
}

func readOnly[T any](op string) backend.Envelope[T] {
	return backend.Fail[T](backend.KindReddit, http.StatusNotImplemented, fmt.Errorf("%w: reddit %s", backend.ErrNotSupported, op))
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

// GetGame describes the game from its subreddit.
func (a *Adapter) GetGame(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	sub, ok := a.sub(opts)
	if !ok {
		return backend.Fail[*backend.Game](backend.KindReddit, http.StatusBadRequest, fmt.Errorf("%w: subreddit required", backend.ErrInvalidRequest)), nil
	}
	var out struct {
		Data struct {
			DisplayName string `json:"display_name"`
			Title       string `json:"title"`
			Icon        string `json:"community_icon"`
		} `json:"data"`
	}
	if err := a.client.Get(ctx, "/r/"+url.PathEscape(sub)+"/about.json", url.Values{"raw_json": {"1"}}, &out); err != nil {
		return transport.Fail[*backend.Game](backend.KindReddit, err), nil
	}
	name := opts.Game
	if name == "" {
		name = out.Data.Title
	}
	return backend.OK(backend.KindReddit, &backend.Game{
		Name:      name,
		Slug:      strings.ToLower(name),
		Logo:      out.Data.Icon,
		Subreddit: out.Data.DisplayName,
	}), nil
}
