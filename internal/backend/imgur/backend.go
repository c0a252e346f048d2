// Package imgur implements backend.Adapter on top of an Imgur album.
//
// Each tag is stored as two album images: the mystery image titled
// "#<n> tag by <player>" and the proof image titled
// "#<n> proof found at (<location>) by <player>". Hints and GPS live in the
// image descriptions.
package imgur

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/config"
	"github.com/biketag-game/biketag-go/internal/transport"
)

// DefaultBaseURL is the Imgur API prefix.
const DefaultBaseURL = "https://api.imgur.com/3"

// Request budget: Imgur allows bursts but throttles sustained traffic.
const (
	requestsPerSecond = 5
	requestBurst      = 10
	deleteWorkers     = 4
)

// Adapter implements backend.Adapter for Imgur.
type Adapter struct {
	client *transport.Client
	hash   string
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an adapter from credentials. An access token authenticates as
// the album owner; otherwise requests are anonymous with the client id.
func New(creds config.ImgurCredentials, opts ...transport.Option) (*Adapter, error) {
	if !creds.Ready() {
		return nil, fmt.Errorf("%w: imgur client id is required", backend.ErrConfigurationInvalid)
	}
	base := []transport.Option{
		transport.WithLimiter(rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)),
	}
	client := transport.Authed(backend.KindImgur.String(), DefaultBaseURL, map[string]string{
		"Authorization": authorization(creds),
	}, append(base, opts...)...)
	return NewFromClient(client, creds.Hash), nil
}

// NewFromClient creates an adapter around an existing transport client.
func NewFromClient(client *transport.Client, hash string) *Adapter {
	return &Adapter{client: client, hash: hash}
}

func authorization(creds config.ImgurCredentials) string {
	if creds.AccessToken != "" {
		return "Bearer " + creds.AccessToken
	}
	return "Client-ID " + creds.ClientID
}

// Kind returns backend.KindImgur.
func (a *Adapter) Kind() backend.Kind {
	return backend.KindImgur
}

// Client returns the underlying transport client.
func (a *Adapter) Client() *transport.Client {
	return a.client
}

type apiResponse[T any] struct {
	Data    T    `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// image is the subset of Imgur's image model the adapter reads.
type image struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Datetime    int64  `json:"datetime"`
	DeleteHash  string `json:"deletehash,omitempty"`
}

// albumImages lists every image in the album.
func (a *Adapter) albumImages(ctx context.Context, hash string) ([]image, error) {
	if hash == "" {
		hash = a.hash
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: album hash is required", backend.ErrInvalidRequest)
	}
	var out apiResponse[[]image]
	if err := a.client.Get(ctx, "/album/"+url.PathEscape(hash)+"/images", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetTag returns one tag from the album, or the newest for the "latest" slug.
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	images, err := a.albumImages(ctx, opts.Hash)
	if err != nil {
		return transport.Fail[*backend.Tag](backend.KindImgur, err), nil
	}

	tags := tagsFromImages(opts.Game, images)
	if len(tags) == 0 {
		return notFound[*backend.Tag](opts), nil
	}
	if opts.Slug == backend.LatestSlug {
		return backend.OK(backend.KindImgur, tags[len(tags)-1]), nil
	}
	for _, t := range tags {
		if t.TagNumber == opts.TagNumber {
			return backend.OK(backend.KindImgur, t), nil
		}
	}
	return notFound[*backend.Tag](opts), nil
}

// GetTags returns the requested tags, or every tag in ascending order.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	images, err := a.albumImages(ctx, opts.Hash)
	if err != nil {
		return transport.Fail[[]*backend.Tag](backend.KindImgur, err), nil
	}
	return backend.OK(backend.KindImgur, selectTags(tagsFromImages(opts.Game, images), opts.TagNumbers, opts.Limit)), nil
}

// UpdateTag rewrites the titles and descriptions of a tag's images. When
// opts.Image is set it is uploaded first and replaces the matching image.
func (a *Adapter) UpdateTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error) {
	if opts.Tag == nil {
		return backend.Fail[bool](backend.KindImgur, http.StatusBadRequest, fmt.Errorf("%w: no tag to update", backend.ErrInvalidRequest)), nil
	}

	lookup := caps.Lookup
	if lookup == nil {
		lookup = backend.Bind(a)
	}
	found, err := lookup.GetTag(ctx, opts)
	if err != nil {
		return backend.Envelope[bool]{}, err
	}
	if !found.Success {
		return backend.Fail[bool](backend.KindImgur, found.Status, found.Error), nil
	}

	tag := found.Data.Apply(*opts.Tag)

	if opts.Image != nil {
		if caps.Uploader == nil {
			return backend.Fail[bool](backend.KindImgur, http.StatusNotImplemented, fmt.Errorf("%w: image upload", backend.ErrNotSupported)), nil
		}
		up, err := caps.Uploader.UploadTagImage(ctx, opts)
		if err != nil {
			return backend.Envelope[bool]{}, err
		}
		if !up.Success {
			return backend.Fail[bool](backend.KindImgur, up.Status, up.Error), nil
		}
		if opts.Image.Type == backend.ImageFound {
			tag.FoundImageURL = up.Data.Link
		} else {
			tag.MysteryImageURL = up.Data.Link
		}
	}

	updates := map[string]url.Values{}
	if id := imageID(tag.MysteryImageURL); id != "" {
		updates[id] = url.Values{"title": {mysteryTitle(tag)}, "description": {tag.Hint}}
	}
	if id := imageID(tag.FoundImageURL); id != "" {
		updates[id] = url.Values{"title": {foundTitle(tag)}, "description": {gpsDescription(tag.GPS)}}
	}
	for id, form := range updates {
		if _, err := a.client.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/image/" + url.PathEscape(id), Body: form}); err != nil {
			return transport.Fail[bool](backend.KindImgur, err), nil
		}
	}
	return backend.OK(backend.KindImgur, true), nil
}

// UploadTagImage uploads opts.Image into the album.
func (a *Adapter) UploadTagImage(ctx context.Context, opts backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
	if opts.Image == nil || len(opts.Image.Data) == 0 {
		return backend.Fail[*backend.Upload](backend.KindImgur, http.StatusBadRequest, fmt.Errorf("%w: no image", backend.ErrInvalidRequest)), nil
	}

	title := fmt.Sprintf("#%d tag", opts.TagNumber)
	if opts.Image.Type == backend.ImageFound {
		title = fmt.Sprintf("#%d proof", opts.TagNumber)
	}
	form := url.Values{
		"image": {base64.StdEncoding.EncodeToString(opts.Image.Data)},
		"type":  {"base64"},
		"title": {title},
	}
	if opts.Image.Name != "" {
		form.Set("name", opts.Image.Name)
	}
	if hash := cmp.Or(opts.Hash, a.hash); hash != "" {
		form.Set("album", hash)
	}

	resp, err := a.client.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/image", Body: form})
	if err != nil {
		return transport.Fail[*backend.Upload](backend.KindImgur, err), nil
	}
	var out apiResponse[image]
	if err := resp.Decode(&out); err != nil {
		return backend.Envelope[*backend.Upload]{}, err
	}
	return backend.OK(backend.KindImgur, &backend.Upload{
		ID:         out.Data.ID,
		Link:       out.Data.Link,
		DeleteHash: out.Data.DeleteHash,
		Title:      cmp.Or(out.Data.Title, title),
		UploadedAt: time.Unix(out.Data.Datetime, 0),
	}), nil
}

// DeleteTag removes both images of a tag, resolved through the lookup capability.
func (a *Adapter) DeleteTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error) {
	lookup := caps.Lookup
	if lookup == nil {
		lookup = backend.Bind(a)
	}
	found, err := lookup.GetTag(ctx, opts)
	if err != nil {
		return backend.Envelope[bool]{}, err
	}
	if !found.Success {
		return backend.Fail[bool](backend.KindImgur, found.Status, found.Error), nil
	}

	hashes, err := a.deleteHashes(ctx, opts.Hash)
	if err != nil {
		return transport.Fail[bool](backend.KindImgur, err), nil
	}
	if err := a.deleteImages(ctx, found.Data, hashes); err != nil {
		return transport.Fail[bool](backend.KindImgur, err), nil
	}
	return backend.OK(backend.KindImgur, true), nil
}

// DeleteTags removes the tags named by opts.TagNumbers concurrently. The
// result holds one entry per tag returned by the list capability. An empty
// TagNumbers is rejected rather than treated as the whole album.
func (a *Adapter) DeleteTags(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]bool], error) {
	if len(opts.TagNumbers) == 0 {
		return backend.Fail[[]bool](backend.KindImgur, http.StatusBadRequest, fmt.Errorf("%w: no tag numbers to delete", backend.ErrInvalidRequest)), nil
	}

	list := caps.List
	if list == nil {
		list = backend.Bind(a)
	}
	listed, err := list.GetTags(ctx, opts)
	if err != nil {
		return backend.Envelope[[]bool]{}, err
	}
	if !listed.Success {
		return backend.Fail[[]bool](backend.KindImgur, listed.Status, listed.Error), nil
	}

	hashes, err := a.deleteHashes(ctx, opts.Hash)
	if err != nil {
		return transport.Fail[[]bool](backend.KindImgur, err), nil
	}

	results := make([]bool, len(listed.Data))
	p := pool.New().WithMaxGoroutines(deleteWorkers)
	for i, tag := range listed.Data {
		p.Go(func() {
			results[i] = a.deleteImages(ctx, tag, hashes) == nil
		})
	}
	p.Wait()

	return backend.OK(backend.KindImgur, results), nil
}

// GetGame is not served by Imgur; games live in the content store.
func (a *Adapter) GetGame(_ context.Context, _ backend.Options, _ backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	return backend.Fail[*backend.Game](backend.KindImgur, http.StatusNotImplemented, fmt.Errorf("%w: imgur has no game records", backend.ErrNotSupported)), nil
}

// deleteHashes maps album image ids to their deletehash. Imgur only returns
// deletehashes to the album owner; images without one are deleted by id,
// which requires a bearer token.
func (a *Adapter) deleteHashes(ctx context.Context, hash string) (map[string]string, error) {
	images, err := a.albumImages(ctx, hash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(images))
	for _, img := range images {
		if img.DeleteHash != "" {
			out[img.ID] = img.DeleteHash
		}
	}
	return out, nil
}

func (a *Adapter) deleteImages(ctx context.Context, tag *backend.Tag, hashes map[string]string) error {
	for _, link := range []string{tag.MysteryImageURL, tag.FoundImageURL} {
		id := imageID(link)
		if id == "" {
			continue
		}
		target := cmp.Or(hashes[id], id)
		if _, err := a.client.Do(ctx, transport.Request{Method: http.MethodDelete, Path: "/image/" + url.PathEscape(target)}); err != nil {
			return err
		}
	}
	return nil
}

func notFound[T any](opts backend.Options) backend.Envelope[T] {
	return backend.Fail[T](backend.KindImgur, http.StatusNotFound, fmt.Errorf("%w: tag %s", backend.ErrNotFound, cmp.Or(opts.Slug, fmt.Sprint(opts.TagNumber))))
}

// selectTags filters tags (ascending) by number and applies limit.
func selectTags(tags []*backend.Tag, numbers []int, limit int) []*backend.Tag {
	out := tags
	if len(numbers) > 0 {
		out = make([]*backend.Tag, 0, len(numbers))
		for _, t := range tags {
			if slices.Contains(numbers, t.TagNumber) {
				out = append(out, t)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// imageID extracts the image id from an i.imgur.com link.
func imageID(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
