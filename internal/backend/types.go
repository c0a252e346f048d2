package backend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LatestSlug is the sentinel slug meaning "most recent tag for the game".
// It deliberately has no tag number.
const LatestSlug = "latest"

// Options is the canonical call options object passed to adapters.
// Zero values mean "absent".
type Options struct {
	Game       string `json:"game,omitempty" yaml:"game,omitempty"`
	Slug       string `json:"slug,omitempty" yaml:"slug,omitempty"`
	TagNumber  int    `json:"tagnumber,omitempty" yaml:"tagnumber,omitempty"`
	TagNumbers []int  `json:"tagnumbers,omitempty" yaml:"tagnumbers,omitempty"`
	Source     Kind   `json:"source,omitempty" yaml:"source,omitempty"`

	// Backend-specific defaults.
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Subreddit string `json:"subreddit,omitempty" yaml:"subreddit,omitempty"`
	Account   string `json:"account,omitempty" yaml:"account,omitempty"`

	// Payload is a raw array passthrough for non-tag calls.
	Payload []any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Operation payloads.
	Tag   *Tag   `json:"tag,omitempty" yaml:"tag,omitempty"`
	Image *Image `json:"-" yaml:"-"`
	Limit int    `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Merge returns a copy of o with every non-zero field of over applied on top.
func (o Options) Merge(over Options) Options {
	if over.Game != "" {
		o.Game = over.Game
	}
	if over.Slug != "" {
		o.Slug = over.Slug
	}
	if over.TagNumber != 0 {
		o.TagNumber = over.TagNumber
	}
	if over.TagNumbers != nil {
		o.TagNumbers = over.TagNumbers
	}
	if over.Source != KindNone {
		o.Source = over.Source
	}
	if over.Hash != "" {
		o.Hash = over.Hash
	}
	if over.Subreddit != "" {
		o.Subreddit = over.Subreddit
	}
	if over.Account != "" {
		o.Account = over.Account
	}
	if over.Payload != nil {
		o.Payload = over.Payload
	}
	if over.Tag != nil {
		o.Tag = over.Tag
	}
	if over.Image != nil {
		o.Image = over.Image
	}
	if over.Limit != 0 {
		o.Limit = over.Limit
	}
	return o
}

// Tag is one hunt round: a mystery location and the proof it was found.
type Tag struct {
	Game      string `json:"game" yaml:"game"`
	TagNumber int    `json:"tagnumber" yaml:"tagnumber"`
	Slug      string `json:"slug" yaml:"slug"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`

	MysteryPlayer   string `json:"mysteryPlayer,omitempty" yaml:"mysteryPlayer,omitempty"`
	MysteryImageURL string `json:"mysteryImageUrl,omitempty" yaml:"mysteryImageUrl,omitempty"`
	MysteryTime     int64  `json:"mysteryTime,omitempty" yaml:"mysteryTime,omitempty"`
	Hint            string `json:"hint,omitempty" yaml:"hint,omitempty"`

	FoundPlayer   string `json:"foundPlayer,omitempty" yaml:"foundPlayer,omitempty"`
	FoundImageURL string `json:"foundImageUrl,omitempty" yaml:"foundImageUrl,omitempty"`
	FoundTime     int64  `json:"foundTime,omitempty" yaml:"foundTime,omitempty"`
	FoundLocation string `json:"foundLocation,omitempty" yaml:"foundLocation,omitempty"`
	GPS           *GPS   `json:"gps,omitempty" yaml:"gps,omitempty"`

	DiscussionURL string `json:"discussionUrl,omitempty" yaml:"discussionUrl,omitempty"`
	MentionURL    string `json:"mentionUrl,omitempty" yaml:"mentionUrl,omitempty"`
}

// TagSlug returns the canonical slug of tag n in game, "<game>-tag-<n>".
func TagSlug(game string, n int) string {
	return fmt.Sprintf("%s-tag-%d", strings.ToLower(game), n)
}

// Apply returns a copy of t with the non-empty fields of patch applied.
// Identity fields (game, number, slug) are never changed.
func (t Tag) Apply(patch Tag) Tag {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.Name, patch.Name)
	set(&t.MysteryPlayer, patch.MysteryPlayer)
	set(&t.MysteryImageURL, patch.MysteryImageURL)
	set(&t.Hint, patch.Hint)
	set(&t.FoundPlayer, patch.FoundPlayer)
	set(&t.FoundImageURL, patch.FoundImageURL)
	set(&t.FoundLocation, patch.FoundLocation)
	set(&t.DiscussionURL, patch.DiscussionURL)
	set(&t.MentionURL, patch.MentionURL)
	if patch.MysteryTime != 0 {
		t.MysteryTime = patch.MysteryTime
	}
	if patch.FoundTime != 0 {
		t.FoundTime = patch.FoundTime
	}
	if patch.GPS != nil {
		g := *patch.GPS
		t.GPS = &g
	}
	return t
}

// GPS is a found-location coordinate.
type GPS struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
	Alt float64 `json:"alt,omitempty" yaml:"alt,omitempty"`
}

// Game describes one regional BikeTag game.
type Game struct {
	Name        string            `json:"name" yaml:"name"`
	Slug        string            `json:"slug" yaml:"slug"`
	Region      string            `json:"region,omitempty" yaml:"region,omitempty"`
	Logo        string            `json:"logo,omitempty" yaml:"logo,omitempty"`
	Boundary    string            `json:"boundary,omitempty" yaml:"boundary,omitempty"`
	Ambassadors []string          `json:"ambassadors,omitempty" yaml:"ambassadors,omitempty"`
	Subreddit   string            `json:"subreddit,omitempty" yaml:"subreddit,omitempty"`
	Twitter     string            `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	MainHash    string            `json:"mainhash,omitempty" yaml:"mainhash,omitempty"`
	Settings    map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Image types for uploads.
const (
	ImageFound   = "found"
	ImageMystery = "mystery"
)

// Image is an upload payload.
type Image struct {
	Type        string // ImageFound or ImageMystery
	Name        string
	ContentType string
	Data        []byte
}

// Upload is the result of an image upload.
type Upload struct {
	ID         string    `json:"id" yaml:"id"`
	Link       string    `json:"link" yaml:"link"`
	DeleteHash string    `json:"deletehash,omitempty" yaml:"deletehash,omitempty"`
	Title      string    `json:"title,omitempty" yaml:"title,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty" yaml:"uploadedAt,omitempty"`
}

// TagGetter looks up a single tag.
type TagGetter interface {
	GetTag(ctx context.Context, opts Options) (Envelope[*Tag], error)
}

// TagLister looks up a list of tags.
type TagLister interface {
	GetTags(ctx context.Context, opts Options) (Envelope[[]*Tag], error)
}

// ImageUploader uploads a tag image.
type ImageUploader interface {
	UploadTagImage(ctx context.Context, opts Options) (Envelope[*Upload], error)
}

// ImageHost is the image-host lookup capability: resolving tag images that
// live on a different backend than the tag record.
type ImageHost interface {
	TagGetter
	TagLister
}

// Capabilities is the side-channel of auxiliary operations bound for a single
// call. Only the fields the operation declares it needs are set.
type Capabilities struct {
	ImageHost ImageHost
	Lookup    TagGetter
	List      TagLister
	Uploader  ImageUploader
}

// Bound exposes an Adapter's lookup and upload operations through the
// capability interfaces, forwarding Caps on every call.
type Bound struct {
	Adapter Adapter
	Caps    Capabilities
}

// Bind wraps a so it can be passed as a capability.
func Bind(a Adapter) Bound {
	return Bound{Adapter: a}
}

// GetTag implements TagGetter.
func (b Bound) GetTag(ctx context.Context, opts Options) (Envelope[*Tag], error) {
	return b.Adapter.GetTag(ctx, opts, b.Caps)
}

// GetTags implements TagLister.
func (b Bound) GetTags(ctx context.Context, opts Options) (Envelope[[]*Tag], error) {
	return b.Adapter.GetTags(ctx, opts, b.Caps)
}

// UploadTagImage implements ImageUploader.
func (b Bound) UploadTagImage(ctx context.Context, opts Options) (Envelope[*Upload], error) {
	return b.Adapter.UploadTagImage(ctx, opts, b.Caps)
}
