package biketag

import (
	"context"
	"fmt"

	"github.com/biketag-game/biketag-go/internal/backend"
)

// Operation names a domain operation for capability binding.
type Operation int

// Domain operations.
const (
	OpGetGame Operation = iota
	OpGetTag
	OpGetTags
	OpUpdateTag
	OpUploadTagImage
	OpDeleteTag
	OpDeleteTags
)

var operationNames = [...]string{
	OpGetGame:        "getGame",
	OpGetTag:         "getTag",
	OpGetTags:        "getTags",
	OpUpdateTag:      "updateTag",
	OpUploadTagImage: "uploadTagImage",
	OpDeleteTag:      "deleteTag",
	OpDeleteTags:     "deleteTags",
}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(op))
	}
	return operationNames[op]
}

// Need is an auxiliary capability an operation requires on a given backend.
type Need int

// Capability needs.
const (
	// NeedImageHost resolves tag images through the image host.
	NeedImageHost Need = iota + 1
	// NeedTagLookup looks a tag up on the same backend.
	NeedTagLookup
	// NeedTagListLookup lists tags on the same backend.
	NeedTagListLookup
	// NeedImageUpload uploads an image on the same backend.
	NeedImageUpload
)

type binding struct {
	op   Operation
	kind backend.Kind
}

// capabilityTable declares which auxiliary capabilities each (operation,
// backend) pair gets. Pairs not listed get none.
var capabilityTable = map[binding][]Need{
	{OpGetTag, backend.KindReddit}:    {NeedImageHost},
	{OpGetTags, backend.KindReddit}:   {NeedImageHost},
	{OpUpdateTag, backend.KindImgur}:  {NeedTagLookup, NeedImageUpload},
	{OpDeleteTag, backend.KindImgur}:  {NeedTagLookup},
	{OpDeleteTags, backend.KindImgur}: {NeedTagListLookup},
}

// Needs returns the capabilities bound for op on kind.
func Needs(op Operation, kind backend.Kind) []Need {
	return capabilityTable[binding{op, kind}]
}

// passthrough exposes an adapter's lookups as capabilities, normalizing the
// options of every call for the adapter's own backend first.
type passthrough struct {
	adapter   backend.Adapter
	normalize func(Options) Options
}

func (p passthrough) GetTag(ctx context.Context, opts Options) (backend.Envelope[*backend.Tag], error) {
	return p.adapter.GetTag(ctx, p.normalize(opts), backend.Capabilities{})
}

func (p passthrough) GetTags(ctx context.Context, opts Options) (backend.Envelope[[]*backend.Tag], error) {
	return p.adapter.GetTags(ctx, p.normalize(opts), backend.Capabilities{})
}

func (p passthrough) UploadTagImage(ctx context.Context, opts Options) (backend.Envelope[*backend.Upload], error) {
	return p.adapter.UploadTagImage(ctx, p.normalize(opts), backend.Capabilities{})
}

// passthroughLocked binds the live adapter for kind, or returns false when
// there is none.
func (c *Client) passthroughLocked(kind backend.Kind) (passthrough, bool) {
	a := c.adapters[kind]
	if a == nil {
		return passthrough{}, false
	}
	d := c.defaultsLocked()
	return passthrough{
		adapter: a,
		normalize: func(o Options) Options {
			return normalize(With(o), CallTag, kind, d, nil)
		},
	}, true
}

// call is a resolved dispatch: the adapter to invoke and what to pass it.
type call struct {
	source  backend.Kind
	adapter backend.Adapter
	opts    Options
	caps    backend.Capabilities
}

// resolve picks the backend, normalizes the argument, applies overloads, and
// binds capabilities for op. The returned call carries the targeted source
// even when err is set.
func (c *Client) resolve(arg Arg, kind CallKind, overloads Options, op Operation) (call, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	explicit := overloads.Source
	overloads.Source = backend.KindNone

	opts := normalize(arg, kind, explicit, c.defaultsLocked(), c.selector.MostAvailable).Merge(overloads)
	cl := call{source: opts.Source, opts: opts}
	if opts.Source == backend.KindNone {
		return cl, backend.ErrNoBackendAvailable
	}

	cl.adapter = c.adapters[opts.Source]
	if cl.adapter == nil {
		return cl, fmt.Errorf("%w: %s", backend.ErrNotConfigured, opts.Source)
	}

	for _, need := range Needs(op, opts.Source) {
		switch need {
		case NeedImageHost:
			if p, ok := c.passthroughLocked(backend.KindImgur); ok {
				cl.caps.ImageHost = p
			}
		case NeedTagLookup:
			if p, ok := c.passthroughLocked(opts.Source); ok {
				cl.caps.Lookup = p
			}
		case NeedTagListLookup:
			if p, ok := c.passthroughLocked(opts.Source); ok {
				cl.caps.List = p
			}
		case NeedImageUpload:
			if p, ok := c.passthroughLocked(opts.Source); ok {
				cl.caps.Uploader = p
			}
		}
	}
	return cl, nil
}
