// Package sanity implements backend.Adapter on the Sanity content lake.
//
// Reads are GROQ queries; writes are mutation transactions. Tag documents use
// their slug ("<game>-tag-<n>") as the document id.
package sanity

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// DefaultAPIVersion is used when the credentials don't pin one.
const DefaultAPIVersion = "2021-06-07"

const (
	tagProjection = `{game, tagnumber, "slug": slug.current, name, mysteryPlayer, mysteryImageUrl, mysteryTime, hint, ` +
		`foundPlayer, foundImageUrl, foundTime, foundLocation, gps, discussionUrl, mentionUrl}`
	gameProjection = `{name, "slug": slug.current, region, logo, boundary, ambassadors, subreddit, twitter, mainhash, settings}`

	queryTag  = `*[_type == "tag" && _id == $id][0]` + tagProjection
	queryTags = `*[_type == "tag" && game == $game && (count($numbers) == 0 || tagnumber in $numbers)] | order(tagnumber asc)` + tagProjection
	queryLast = `*[_type == "tag" && game == $game] | order(tagnumber desc)[0]` + tagProjection
	queryGame = `*[_type == "game" && lower(slug.current) == lower($name)][0]` + gameProjection
)

// Adapter implements backend.Adapter for Sanity.
type Adapter struct {
	client  *transport.Client
	dataset string
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an adapter from credentials. A token, when present, is attached
// through an oauth2 static token source.
func New(creds config.SanityCredentials, opts ...transport.Option) (*Adapter, error) {
	if !creds.Ready() {
		return nil, fmt.Errorf("%w: sanity project id and dataset are required", backend.ErrConfigurationInvalid)
	}
	if creds.Token != "" {
		hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token}))
		hc.Timeout = transport.DefaultTimeout
		opts = append([]transport.Option{transport.WithHTTPClient(hc)}, opts...)
	}
	client := transport.Authed(backend.KindSanity.String(), BaseURL(creds), nil, opts...)
	return NewFromClient(client, creds.Dataset), nil
}

// BaseURL returns the versioned API prefix for the project.
func BaseURL(creds config.SanityCredentials) string {
	host := "api.sanity.io"
	if creds.UseCDN {
		host = "apicdn.sanity.io"
	}
	version := creds.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s.%s/v%s", creds.ProjectID, host, strings.TrimPrefix(version, "v"))
}

// NewFromClient creates an adapter around an existing transport client.
func NewFromClient(client *transport.Client, dataset string) *Adapter {
	return &Adapter{client: client, dataset: dataset}
}

// Kind returns backend.KindSanity.
func (a *Adapter) Kind() backend.Kind {
	return backend.KindSanity
}

// Client returns the underlying transport client.
func (a *Adapter) Client() *transport.Client {
	return a.client
}

type queryResponse[T any] struct {
	Result T `json:"result"`
}

type mutateResult struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
}

type mutateResponse struct {
	TransactionID string         `json:"transactionId"`
	Results       []mutateResult `json:"results"`
}

// query runs a GROQ query with JSON-encoded parameters.
func query[T any](ctx context.Context, a *Adapter, groq string, params map[string]any) (T, error) {
	var zero T
	q := url.Values{"query": {groq}}
	for k, v := range params {
		enc, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("encode param %s: %w", k, err)
		}
		q.Set("$"+k, string(enc))
	}
	var out queryResponse[T]
	if err := a.client.Get(ctx, "/data/query/"+url.PathEscape(a.dataset), q, &out); err != nil {
		return zero, err
	}
	return out.Result, nil
}

func (a *Adapter) mutate(ctx context.Context, mutations ...map[string]any) (mutateResponse, error) {
	var out mutateResponse
	resp, err := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/data/mutate/" + url.PathEscape(a.dataset),
		Query:  url.Values{"returnIds": {"true"}},
		Body:   map[string]any{"mutations": mutations},
	})
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// tagID returns the document id for the tag in opts, or "" when neither a
// slug nor a game and tag number are known.
func tagID(opts backend.Options) string {
	if opts.Slug != "" && opts.Slug != backend.LatestSlug {
		return opts.Slug
	}
	if opts.Game != "" && opts.TagNumber > 0 {
		return backend.TagSlug(opts.Game, opts.TagNumber)
	}
	return ""
}

// GetTag returns one tag by slug or number, or the newest for "latest".
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	var (
		tag *backend.Tag
		err error
	)
	if opts.Slug == backend.LatestSlug {
		tag, err = query[*backend.Tag](ctx, a, queryLast, map[string]any{"game": strings.ToLower(opts.Game)})
	} else {
		id := tagID(opts)
		if id == "" {
			return backend.Fail[*backend.Tag](backend.KindSanity, http.StatusBadRequest, fmt.Errorf("%w: slug or tag number required", backend.ErrInvalidRequest)), nil
		}
		tag, err = query[*backend.Tag](ctx, a, queryTag, map[string]any{"id": id})
	}
	if err != nil {
		return transport.Fail[*backend.Tag](backend.KindSanity, err), nil
	}
	if tag == nil {
		return backend.Fail[*backend.Tag](backend.KindSanity, http.StatusNotFound, fmt.Errorf("%w: tag %s", backend.ErrNotFound, tagID(opts))), nil
	}
	return backend.OK(backend.KindSanity, tag), nil
}

// GetTags returns tags for the game in ascending order.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	numbers := opts.TagNumbers
	if numbers == nil {
		numbers = []int{}
	}
	tags, err := query[[]*backend.Tag](ctx, a, queryTags, map[string]any{
		"game":    strings.ToLower(opts.Game),
		"numbers": numbers,
	})
	if err != nil {
		return transport.Fail[[]*backend.Tag](backend.KindSanity, err), nil
	}
	if opts.Limit > 0 && len(tags) > opts.Limit {
		tags = tags[:opts.Limit]
	}
	return backend.OK(backend.KindSanity, tags), nil
}

// UpdateTag patches the non-empty fields of opts.Tag onto the document.
func (a *Adapter) UpdateTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[bool], error) {
	id := tagID(opts)
	if opts.Tag == nil || id == "" {
		return backend.Fail[bool](backend.KindSanity, http.StatusBadRequest, fmt.Errorf("%w: tag and tag id required", backend.ErrInvalidRequest)), nil
	}
	fields, err := patchFields(*opts.Tag)
	if err != nil {
		return backend.Envelope[bool]{}, err
	}
	if len(fields) == 0 {
		return backend.OK(backend.KindSanity, true), nil
	}
	if _, err := a.mutate(ctx, map[string]any{"patch": map[string]any{"id": id, "set": fields}}); err != nil {
		return transport.Fail[bool](backend.KindSanity, err), nil
	}
	return backend.OK(backend.KindSanity, true), nil
}

// patchFields returns the tag's set fields without its identity keys.
func patchFields(t backend.Tag) (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tag: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}
	for _, k := range []string{"game", "tagnumber", "slug"} {
		delete(fields, k)
	}
	return fields, nil
}

// UploadTagImage stores the image as a Sanity asset.
func (a *Adapter) UploadTagImage(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
	if opts.Image == nil || len(opts.Image.Data) == 0 {
		return backend.Fail[*backend.Upload](backend.KindSanity, http.StatusBadRequest, fmt.Errorf("%w: no image", backend.ErrInvalidRequest)), nil
	}
	q := url.Values{}
	if opts.Image.Name != "" {
		q.Set("filename", opts.Image.Name)
	}
	resp, err := a.client.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "/assets/images/" + url.PathEscape(a.dataset),
		Query:       q,
		Body:        opts.Image.Data,
		ContentType: cmp.Or(opts.Image.ContentType, "application/octet-stream"),
	})
	if err != nil {
		return transport.Fail[*backend.Upload](backend.KindSanity, err), nil
	}
	var out struct {
		Document struct {
			ID  string `json:"_id"`
			URL string `json:"url"`
		} `json:"document"`
	}
	if err := resp.Decode(&out); err != nil {
		return backend.Envelope[*backend.Upload]{}, err
	}
	return backend.OK(backend.KindSanity, &backend.Upload{ID: out.Document.ID, Link: out.Document.URL, Title: opts.Image.Name}), nil
}

// DeleteTag deletes the tag document. Without a slug or a game and tag
// number there is nothing to address, which yields a status 0 failure.
func (a *Adapter) DeleteTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[bool], error) {
	id := tagID(opts)
	if id == "" {
		return backend.Fail[bool](backend.KindSanity, 0, fmt.Errorf("%w: no slug or tag number to delete", backend.ErrInvalidRequest)), nil
	}
	out, err := a.mutate(ctx, map[string]any{"delete": map[string]any{"id": id}})
	if err != nil {
		return transport.Fail[bool](backend.KindSanity, err), nil
	}
	return backend.OK(backend.KindSanity, len(out.Results) > 0), nil
}

// DeleteTags deletes the listed tags in one transaction. Each entry reports
// whether that document existed.
func (a *Adapter) DeleteTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]bool], error) {
	if opts.Game == "" || len(opts.TagNumbers) == 0 {
		return backend.Fail[[]bool](backend.KindSanity, http.StatusBadRequest, fmt.Errorf("%w: game and tag numbers required", backend.ErrInvalidRequest)), nil
	}
	ids := make([]string, len(opts.TagNumbers))
	mutations := make([]map[string]any, len(opts.TagNumbers))
	for i, n := range opts.TagNumbers {
		ids[i] = backend.TagSlug(opts.Game, n)
		mutations[i] = map[string]any{"delete": map[string]any{"id": ids[i]}}
	}
	out, err := a.mutate(ctx, mutations...)
	if err != nil {
		return transport.Fail[[]bool](backend.KindSanity, err), nil
	}

	deleted := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		deleted = append(deleted, r.ID)
	}
	results := make([]bool, len(ids))
	for i, id := range ids {
		results[i] = slices.Contains(deleted, id)
	}
	return backend.OK(backend.KindSanity, results), nil
}

// GetGame returns the game document matching the slug or game name.
func (a *Adapter) GetGame(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	name := cmp.Or(opts.Slug, opts.Game)
	if name == "" {
		return backend.Fail[*backend.Game](backend.KindSanity, http.StatusBadRequest, fmt.Errorf("%w: game required", backend.ErrInvalidRequest)), nil
	}
	game, err := query[*backend.Game](ctx, a, queryGame, map[string]any{"name": name})
	if err != nil {
		return transport.Fail[*backend.Game](backend.KindSanity, err), nil
	}
	if game == nil {
		return backend.Fail[*backend.Game](backend.KindSanity, http.StatusNotFound, fmt.Errorf("%w: game %s", backend.ErrNotFound, name)), nil
	}
	return backend.OK(backend.KindSanity, game), nil
}
