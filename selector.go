package biketag

import (
	"sync"

	"github.com/biketag-game/biketag-go/internal/backend"
)

// priority is the order in which backends are tried when the caller doesn't
// name one.
var priority = []backend.Kind{
	backend.KindBikeTag,
	backend.KindImgur,
	backend.KindSanity,
	backend.KindReddit,
	backend.KindTwitter,
}

// Selector picks the most available backend and remembers the choice until
// Invalidate is called.
type Selector struct {
	ready func(backend.Kind) bool

	mu     sync.Mutex
	cached backend.Kind
}

// NewSelector returns a selector that uses ready to test each backend.
func NewSelector(ready func(backend.Kind) bool) *Selector {
	return &Selector{ready: ready}
}

// MostAvailable returns the first ready backend in priority order, or
// KindNone. A found backend is memoized; KindNone is not.
func (s *Selector) MostAvailable() backend.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != backend.KindNone {
		return s.cached
	}
	for _, k := range priority {
		if s.ready(k) {
			s.cached = k
			return k
		}
	}
	return backend.KindNone
}

// Invalidate drops the memoized choice.
func (s *Selector) Invalidate() {
	s.mu.Lock()
	s.cached = backend.KindNone
	s.mu.Unlock()
}
