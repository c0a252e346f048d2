// Package mock provides an in-memory backend.Adapter for testing.
package mock

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/biketag-game/biketag-go/internal/backend"
)

// Method names used in call tracking.
const (
	MethodGetTag         = "GetTag"
	MethodGetTags        = "GetTags"
	MethodUpdateTag      = "UpdateTag"
	MethodUploadTagImage = "UploadTagImage"
	MethodDeleteTag      = "DeleteTag"
	MethodDeleteTags     = "DeleteTags"
	MethodGetGame        = "GetGame"
)

// Call records one adapter invocation.
type Call struct {
	Method  string
	Options backend.Options
	Caps    backend.Capabilities
}

// Adapter is a mock implementation of backend.Adapter.
// It stores tags and games in memory and provides hooks for testing.
type Adapter struct {
	mu    sync.RWMutex
	kind  backend.Kind
	tags  map[string]map[int]backend.Tag // game -> tag number -> tag
	games map[string]backend.Game

	// Test hooks - set these to inject errors or custom behavior
	GetTagFunc         func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Tag], error)
	GetTagsFunc        func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]*backend.Tag], error)
	UpdateTagFunc      func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error)
	UploadTagImageFunc func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Upload], error)
	DeleteTagFunc      func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error)
	DeleteTagsFunc     func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]bool], error)
	GetGameFunc        func(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Game], error)

	// Tracking - for assertions in tests
	Calls []Call
}

// Ensure Adapter implements backend.Adapter at compile time.
var _ backend.Adapter = (*Adapter)(nil)

// New creates an empty mock adapter reporting the given kind.
func New(kind backend.Kind) *Adapter {
	return &Adapter{
		kind:  kind,
		tags:  make(map[string]map[int]backend.Tag),
		games: make(map[string]backend.Game),
	}
}

// Kind returns the backend kind the mock stands in for.
func (a *Adapter) Kind() backend.Kind {
	return a.kind
}

// AddTag adds a tag to the mock store.
func (a *Adapter) AddTag(t backend.Tag) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.putTagLocked(t)
}

// AddGame adds a game to the mock store.
func (a *Adapter) AddGame(g backend.Game) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.games[strings.ToLower(g.Slug)] = g
}

// Seed fills the store with a game and n generated tags numbered 1..n.
func (a *Adapter) Seed(game string, n int) {
	gofakeit.Seed(time.Now().UnixNano())

	a.mu.Lock()
	defer a.mu.Unlock()

	slug := strings.ToLower(game)
	a.games[slug] = backend.Game{
		Name:        game,
		Slug:        slug,
		Region:      gofakeit.City(),
		Ambassadors: []string{gofakeit.Username(), gofakeit.Username()},
		Subreddit:   slug + "biketag",
		MainHash:    gofakeit.LetterN(7),
	}

	start := time.Now().Add(-time.Duration(n) * 24 * time.Hour)
	for i := 1; i <= n; i++ {
		found := start.Add(time.Duration(i) * 24 * time.Hour)
		a.putTagLocked(backend.Tag{
			Game:            slug,
			TagNumber:       i,
			Slug:            backend.TagSlug(slug, i),
			MysteryPlayer:   gofakeit.Username(),
			MysteryImageURL: gofakeit.URL(),
			MysteryTime:     found.Add(-time.Hour).Unix(),
			Hint:            gofakeit.Sentence(6),
			FoundPlayer:     gofakeit.Username(),
			FoundImageURL:   gofakeit.URL(),
			FoundTime:       found.Unix(),
			FoundLocation:   gofakeit.Street(),
			GPS: &backend.GPS{
				Lat: gofakeit.Latitude(),
				Lng: gofakeit.Longitude(),
			},
		})
	}
}

// TagCount returns the number of stored tags for game.
func (a *Adapter) TagCount(game string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tags[strings.ToLower(game)])
}

// CallsTo returns the recorded calls of one method.
func (a *Adapter) CallsTo(method string) []Call {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Call
	for _, c := range a.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// LastCall returns the most recent call, if any.
func (a *Adapter) LastCall() (Call, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.Calls) == 0 {
		return Call{}, false
	}
	return a.Calls[len(a.Calls)-1], true
}

// Reset clears all data and call tracking.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tags = make(map[string]map[int]backend.Tag)
	a.games = make(map[string]backend.Game)
	a.Calls = nil
}

func (a *Adapter) record(method string, opts backend.Options, caps backend.Capabilities) {
	a.mu.Lock()
	a.Calls = append(a.Calls, Call{Method: method, Options: opts, Caps: caps})
	a.mu.Unlock()
}

func (a *Adapter) putTagLocked(t backend.Tag) {
	game := strings.ToLower(t.Game)
	if a.tags[game] == nil {
		a.tags[game] = make(map[int]backend.Tag)
	}
	a.tags[game][t.TagNumber] = t
}

// GetTag returns one tag by number, or the newest for the "latest" slug.
func (a *Adapter) GetTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Tag], error) {
	a.record(MethodGetTag, opts, caps)
	if a.GetTagFunc != nil {
		return a.GetTagFunc(ctx, opts, caps)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	tags := a.tags[strings.ToLower(opts.Game)]
	n := opts.TagNumber
	if opts.Slug == backend.LatestSlug {
		for k := range tags {
			n = max(n, k)
		}
	}
	t, ok := tags[n]
	if !ok {
		return backend.Fail[*backend.Tag](a.kind, http.StatusNotFound, fmt.Errorf("%w: tag %d", backend.ErrNotFound, n)), nil
	}
	return backend.OK(a.kind, &t), nil
}

// GetTags returns the requested tags, or all of them in ascending order.
func (a *Adapter) GetTags(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]*backend.Tag], error) {
	a.record(MethodGetTags, opts, caps)
	if a.GetTagsFunc != nil {
		return a.GetTagsFunc(ctx, opts, caps)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	tags := a.tags[strings.ToLower(opts.Game)]
	numbers := opts.TagNumbers
	if len(numbers) == 0 {
		for k := range tags {
			numbers = append(numbers, k)
		}
		slices.Sort(numbers)
	}

	out := make([]*backend.Tag, 0, len(numbers))
	for _, n := range numbers {
		if t, ok := tags[n]; ok {
			out = append(out, &t)
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return backend.OK(a.kind, out), nil
}

// UpdateTag stores opts.Tag. When a lookup capability is bound, the tag must
// already exist there.
func (a *Adapter) UpdateTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error) {
	a.record(MethodUpdateTag, opts, caps)
	if a.UpdateTagFunc != nil {
		return a.UpdateTagFunc(ctx, opts, caps)
	}

	if opts.Tag == nil {
		return backend.Fail[bool](a.kind, http.StatusBadRequest, fmt.Errorf("%w: no tag to update", backend.ErrInvalidRequest)), nil
	}
	if caps.Lookup != nil {
		found, err := caps.Lookup.GetTag(ctx, opts)
		if err != nil {
			return backend.Envelope[bool]{}, err
		}
		if !found.Success {
			return backend.Fail[bool](a.kind, found.Status, found.Error), nil
		}
	}

	t := *opts.Tag
	if t.Game == "" {
		t.Game = opts.Game
	}
	if t.TagNumber == 0 {
		t.TagNumber = opts.TagNumber
	}
	a.AddTag(t)
	return backend.OK(a.kind, true), nil
}

// UploadTagImage pretends to store opts.Image.
func (a *Adapter) UploadTagImage(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Upload], error) {
	a.record(MethodUploadTagImage, opts, caps)
	if a.UploadTagImageFunc != nil {
		return a.UploadTagImageFunc(ctx, opts, caps)
	}

	if opts.Image == nil || len(opts.Image.Data) == 0 {
		return backend.Fail[*backend.Upload](a.kind, http.StatusBadRequest, fmt.Errorf("%w: no image", backend.ErrInvalidRequest)), nil
	}
	id := gofakeit.LetterN(7)
	return backend.OK(a.kind, &backend.Upload{
		ID:         id,
		Link:       "https://example.test/" + id,
		DeleteHash: gofakeit.LetterN(15),
		Title:      fmt.Sprintf("#%d %s", opts.TagNumber, opts.Image.Type),
		UploadedAt: time.Now(),
	}), nil
}

// DeleteTag removes one tag. When a lookup capability is bound, the tag is
// resolved through it first.
func (a *Adapter) DeleteTag(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[bool], error) {
	a.record(MethodDeleteTag, opts, caps)
	if a.DeleteTagFunc != nil {
		return a.DeleteTagFunc(ctx, opts, caps)
	}

	if caps.Lookup != nil {
		found, err := caps.Lookup.GetTag(ctx, opts)
		if err != nil {
			return backend.Envelope[bool]{}, err
		}
		if !found.Success {
			return backend.Fail[bool](a.kind, found.Status, found.Error), nil
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tags := a.tags[strings.ToLower(opts.Game)]
	if _, ok := tags[opts.TagNumber]; !ok {
		return backend.Fail[bool](a.kind, http.StatusNotFound, fmt.Errorf("%w: tag %d", backend.ErrNotFound, opts.TagNumber)), nil
	}
	delete(tags, opts.TagNumber)
	return backend.OK(a.kind, true), nil
}

// DeleteTags removes each of opts.TagNumbers and reports per-tag success.
func (a *Adapter) DeleteTags(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[[]bool], error) {
	a.record(MethodDeleteTags, opts, caps)
	if a.DeleteTagsFunc != nil {
		return a.DeleteTagsFunc(ctx, opts, caps)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tags := a.tags[strings.ToLower(opts.Game)]
	out := make([]bool, len(opts.TagNumbers))
	for i, n := range opts.TagNumbers {
		if _, ok := tags[n]; ok {
			delete(tags, n)
			out[i] = true
		}
	}
	return backend.OK(a.kind, out), nil
}

// GetGame returns a game by slug.
func (a *Adapter) GetGame(ctx context.Context, opts backend.Options, caps backend.Capabilities) (backend.Envelope[*backend.Game], error) {
	a.record(MethodGetGame, opts, caps)
	if a.GetGameFunc != nil {
		return a.GetGameFunc(ctx, opts, caps)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	g, ok := a.games[strings.ToLower(opts.Slug)]
	if !ok {
		return backend.Fail[*backend.Game](a.kind, http.StatusNotFound, fmt.Errorf("%w: game %q", backend.ErrNotFound, opts.Slug)), nil
	}
	return backend.OK(a.kind, &g), nil
}
