// Package backend defines the Adapter contract shared by every BikeTag backend.
// Each backend (native API, Sanity, Imgur, Reddit, Twitter) implements Adapter,
// so the client facade can dispatch tag and game operations through one API.
package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Kind identifies a backend. The declaration order is the total order used for
// default priority purposes.
type Kind int

// Backend kinds.
const (
	KindNone Kind = iota
	KindBikeTag
	KindSanity
	KindImgur
	KindReddit
	KindTwitter
)

var kindNames = map[Kind]string{
	KindBikeTag: "biketag",
	KindSanity:  "sanity",
	KindImgur:   "imgur",
	KindReddit:  "reddit",
	KindTwitter: "twitter",
}

// Kinds lists every concrete backend kind in priority-independent order.
func Kinds() []Kind {
	return []Kind{KindBikeTag, KindSanity, KindImgur, KindReddit, KindTwitter}
}

// String returns the backend name, or "" for KindNone.
func (k Kind) String() string {
	return kindNames[k]
}

// ParseKind maps a backend name (case-insensitive) to its Kind.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindNone, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = KindNone
		return nil
	}
	parsed, ok := ParseKind(string(text))
	if !ok {
		return ErrUnknownKind
	}
	*k = parsed
	return nil
}

// Envelope is the uniform result of every domain operation.
// Success is true exactly when Error is nil.
type Envelope[T any] struct {
	Status  int   `json:"status"`
	Success bool  `json:"success"`
	Data    T     `json:"data"`
	Error   error `json:"-"`
	Source  Kind  `json:"source"`
}

// OK builds a success envelope.
func OK[T any](source Kind, data T) Envelope[T] {
	return Envelope[T]{Status: http.StatusOK, Success: true, Data: data, Source: source}
}

// Fail builds a failure envelope. A nil err is replaced so that the envelope
// never reports failure without an error.
func Fail[T any](source Kind, status int, err error) Envelope[T] {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	return Envelope[T]{Status: status, Error: err, Source: source}
}

// ErrorMessage returns the error text, or "" on success.
func (e Envelope[T]) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Error()
}

// Adapter is the operation set every backend exposes.
// Ordinary failures (not found, unsupported, rejected by the backend) are
// returned as failure envelopes with a nil error; a non-nil error is reserved
// for exceptional conditions. The facade treats both the same way.
type Adapter interface {
	Kind() Kind

	GetTag(ctx context.Context, opts Options, caps Capabilities) (Envelope[*Tag], error)
	GetTags(ctx context.Context, opts Options, caps Capabilities) (Envelope[[]*Tag], error)
	UpdateTag(ctx context.Context, opts Options, caps Capabilities) (Envelope[bool], error)
	UploadTagImage(ctx context.Context, opts Options, caps Capabilities) (Envelope[*Upload], error)
	DeleteTag(ctx context.Context, opts Options, caps Capabilities) (Envelope[bool], error)
	DeleteTags(ctx context.Context, opts Options, caps Capabilities) (Envelope[[]bool], error)
	GetGame(ctx context.Context, opts Options, caps Capabilities) (Envelope[*Game], error)
}

// Errors shared by the facade and all adapters.
var (
	// ErrConfigurationInvalid is returned when a credential record fails its
	// shape or readiness check.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrNoBackendAvailable is returned when no backend is ready.
	ErrNoBackendAvailable = errors.New("no backend available")

	// ErrNotConfigured is returned when a call is routed to a backend without a live adapter.
	ErrNotConfigured = errors.New("backend not configured")

	// ErrNotImplemented is returned by operations that are deliberately unimplemented.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotSupported is returned when a backend cannot serve an operation.
	ErrNotSupported = errors.New("operation not supported")

	// ErrNotFound is returned when a tag or game doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest is returned when the call options are incomplete.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPermission is returned when the credentials lack permission.
	ErrPermission = errors.New("permission denied")

	// ErrBackendOffline is returned when the backend is unreachable.
	ErrBackendOffline = errors.New("backend not reachable")

	// ErrRateLimited is returned when the backend rate limits the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownKind is returned when a backend name can't be parsed.
	ErrUnknownKind = errors.New("unknown backend")
)

// IsRetryable returns true if the error is potentially transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendOffline) ||
		errors.Is(err, ErrRateLimited)
}

// StatusFor maps a sentinel error to the HTTP-style status used in failure envelopes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotSupported), errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrBackendOffline),
		errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrNoBackendAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus maps an HTTP status code to a sentinel error, or nil for 2xx.
func FromStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrPermission
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	case code == http.StatusServiceUnavailable,
		code == http.StatusBadGateway,
		code == http.StatusGatewayTimeout:
		return ErrBackendOffline
	default:
		return errors.New(http.StatusText(code))
	}
}
