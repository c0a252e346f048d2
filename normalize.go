package biketag

import (
	"strings"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/stringutil"
)

// Options is the canonical call options object.
type Options = backend.Options

// CallKind selects the defaulting rules applied to a call argument.
type CallKind int

// Call kinds.
const (
	CallTag CallKind = iota
	CallGame
)

// Arg is a call argument. It is one of Slug, TagNumber, TagNumbers, Payload,
// or an Options value wrapped with With. A nil Arg means no argument.
type Arg interface {
	shape(kind CallKind) Options
}

// Slug addresses a tag or game by its slug.
type Slug string

// TagNumber addresses a tag by number.
type TagNumber int

// TagNumbers addresses several tags by number.
type TagNumbers []int

// Payload is passed through to the backend untouched.
type Payload []any

type optionsArg Options

// With wraps a structured options value as an Arg.
func With(o Options) Arg {
	return optionsArg(o)
}

func (s Slug) shape(CallKind) Options {
	return Options{Slug: string(s)}
}

// A number only means something for tag calls; game calls ignore it.
func (n TagNumber) shape(kind CallKind) Options {
	if kind != CallTag {
		return Options{}
	}
	return Options{TagNumber: int(n)}
}

func (ns TagNumbers) shape(kind CallKind) Options {
	if kind == CallTag {
		return Options{TagNumbers: []int(ns)}
	}
	payload := make([]any, len(ns))
	for i, n := range ns {
		payload[i] = n
	}
	return Options{Payload: payload}
}

func (p Payload) shape(CallKind) Options {
	return Options{Payload: []any(p)}
}

func (o optionsArg) shape(CallKind) Options {
	return Options(o)
}

// defaults holds the configured values the normalizer fills in.
type defaults struct {
	Game      string
	Hash      string
	Subreddit string
	Account   string
}

// normalize expands arg into fully populated options. source, when set, wins
// over a source carried in arg; pick is consulted only when neither is set
// and may be nil. Fields already present are never overwritten, so
// normalizing normalized options is a no-op.
func normalize(arg Arg, kind CallKind, source backend.Kind, d defaults, pick func() backend.Kind) Options {
	var opts Options
	if arg != nil {
		opts = arg.shape(kind)
	}

	switch {
	case source != backend.KindNone:
		opts.Source = source
	case opts.Source == backend.KindNone && pick != nil:
		opts.Source = pick()
	}

	switch kind {
	case CallGame:
		if opts.Game == "" {
			opts.Game = opts.Slug
		}
		if opts.Slug == "" {
			opts.Slug = strings.ToLower(opts.Game)
		}
	case CallTag:
		if opts.Game == "" {
			opts.Game = d.Game
		}
		if opts.Slug == "" {
			if opts.TagNumber != 0 {
				opts.Slug = backend.TagSlug(opts.Game, opts.TagNumber)
			} else {
				opts.Slug = backend.LatestSlug
			}
		}
		if opts.TagNumber == 0 && opts.Slug != backend.LatestSlug {
			if n, ok := stringutil.TrailingNumber(opts.Slug); ok {
				opts.TagNumber = n
			}
		}
	}

	switch opts.Source {
	case backend.KindImgur:
		if opts.Hash == "" {
			opts.Hash = d.Hash
		}
	case backend.KindReddit:
		if opts.Subreddit == "" {
			opts.Subreddit = d.Subreddit
		}
	case backend.KindTwitter:
		if opts.Account == "" {
			opts.Account = d.Account
		}
	}
	return opts
}
