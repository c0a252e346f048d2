package config

import (
	"net/url"

	"github.com/biketag-game/biketag-go/internal/backend"
)

// Credentials is implemented by every per-backend credential record.
type Credentials interface {
	// Kind returns the backend the record configures.
	Kind() backend.Kind
	// Valid reports whether the record has the shape of this backend's credentials.
	Valid() bool
	// Ready reports whether every field the adapter needs to authenticate is present.
	Ready() bool
}

// Configuration maps each backend to its credential record; nil means absent.
type Configuration struct {
	BikeTag *BikeTagCredentials `yaml:"biketag,omitempty"`
	Sanity  *SanityCredentials  `yaml:"sanity,omitempty"`
	Imgur   *ImgurCredentials   `yaml:"imgur,omitempty"`
	Reddit  *RedditCredentials  `yaml:"reddit,omitempty"`
	Twitter *TwitterCredentials `yaml:"twitter,omitempty"`
}

// Record returns the record configured for k, or nil.
func (c Configuration) Record(k backend.Kind) Credentials {
	switch k {
	case backend.KindBikeTag:
		if c.BikeTag != nil {
			return c.BikeTag
		}
	case backend.KindSanity:
		if c.Sanity != nil {
			return c.Sanity
		}
	case backend.KindImgur:
		if c.Imgur != nil {
			return c.Imgur
		}
	case backend.KindReddit:
		if c.Reddit != nil {
			return c.Reddit
		}
	case backend.KindTwitter:
		if c.Twitter != nil {
			return c.Twitter
		}
	}
	return nil
}

// Clone returns a copy whose records don't alias c's.
func (c Configuration) Clone() Configuration {
	return Configuration{
		BikeTag: clonePtr(c.BikeTag),
		Sanity:  clonePtr(c.Sanity),
		Imgur:   clonePtr(c.Imgur),
		Reddit:  clonePtr(c.Reddit),
		Twitter: clonePtr(c.Twitter),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Equal reports whether two records are equal by value. Two absent records are equal.
func Equal[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// firstSet returns existing when it is non-empty, otherwise incoming.
func firstSet(existing, incoming string) string {
	if existing != "" {
		return existing
	}
	return incoming
}

// BikeTagCredentials configures the native BikeTag API and its realtime peer.
type BikeTagCredentials struct {
	Game   string `yaml:"game"`
	Host   string `yaml:"host,omitempty"`
	Peer   string `yaml:"peer,omitempty"`
	APIKey string `yaml:"-"`
}

// Kind implements Credentials.
func (c *BikeTagCredentials) Kind() backend.Kind { return backend.KindBikeTag }

// Valid implements Credentials.
func (c *BikeTagCredentials) Valid() bool {
	return c != nil && c.Game != "" && validURL(c.Host, true)
}

// Ready implements Credentials.
func (c *BikeTagCredentials) Ready() bool {
	return c.Valid() && c.APIKey != ""
}

// NewBikeTagCredentials merges partial into existing; existing fields win.
func NewBikeTagCredentials(partial, existing *BikeTagCredentials) *BikeTagCredentials {
	if existing == nil {
		return clonePtr(partial)
	}
	if partial == nil {
		return clonePtr(existing)
	}
	return &BikeTagCredentials{
		Game:   firstSet(existing.Game, partial.Game),
		Host:   firstSet(existing.Host, partial.Host),
		Peer:   firstSet(existing.Peer, partial.Peer),
		APIKey: firstSet(existing.APIKey, partial.APIKey),
	}
}

// SanityCredentials configures the structured-content store.
type SanityCredentials struct {
	ProjectID  string `yaml:"project_id"`
	Dataset    string `yaml:"dataset"`
	APIVersion string `yaml:"api_version,omitempty"`
	UseCDN     bool   `yaml:"use_cdn,omitempty"`
	Token      string `yaml:"-"`
}

// Kind implements Credentials.
func (c *SanityCredentials) Kind() backend.Kind { return backend.KindSanity }

// Valid implements Credentials.
func (c *SanityCredentials) Valid() bool {
	return c != nil && c.ProjectID != ""
}

// Ready implements Credentials.
func (c *SanityCredentials) Ready() bool {
	return c.Valid() && c.Dataset != ""
}

// NewSanityCredentials merges partial into existing; existing fields win.
func NewSanityCredentials(partial, existing *SanityCredentials) *SanityCredentials {
	if existing == nil {
		return clonePtr(partial)
	}
	if partial == nil {
		return clonePtr(existing)
	}
	return &SanityCredentials{
		ProjectID:  firstSet(existing.ProjectID, partial.ProjectID),
		Dataset:    firstSet(existing.Dataset, partial.Dataset),
		APIVersion: firstSet(existing.APIVersion, partial.APIVersion),
		UseCDN:     existing.UseCDN || partial.UseCDN,
		Token:      firstSet(existing.Token, partial.Token),
	}
}

// ImgurCredentials configures the image host.
type ImgurCredentials struct {
	ClientID     string `yaml:"client_id"`
	Hash         string `yaml:"hash,omitempty"`
	ClientSecret string `yaml:"-"`
	AccessToken  string `yaml:"-"`
}

// Kind implements Credentials.
func (c *ImgurCredentials) Kind() backend.Kind { return backend.KindImgur }

// Valid implements Credentials.
func (c *ImgurCredentials) Valid() bool {
	return c != nil && c.ClientID != ""
}

// Ready implements Credentials.
func (c *ImgurCredentials) Ready() bool {
	return c.Valid()
}

// NewImgurCredentials merges partial into existing; existing fields win.
func NewImgurCredentials(partial, existing *ImgurCredentials) *ImgurCredentials {
	if existing == nil {
		return clonePtr(partial)
	}
	if partial == nil {
		return clonePtr(existing)
	}
	return &ImgurCredentials{
		ClientID:     firstSet(existing.ClientID, partial.ClientID),
		Hash:         firstSet(existing.Hash, partial.Hash),
		ClientSecret: firstSet(existing.ClientSecret, partial.ClientSecret),
		AccessToken:  firstSet(existing.AccessToken, partial.AccessToken),
	}
}

// RedditCredentials configures the discussion forum (script-app password grant).
type RedditCredentials struct {
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Subreddit    string `yaml:"subreddit,omitempty"`
	UserAgent    string `yaml:"user_agent,omitempty"`
	ClientSecret string `yaml:"-"`
	Password     string `yaml:"-"`
}

// Kind implements Credentials.
func (c *RedditCredentials) Kind() backend.Kind { return backend.KindReddit }

// Valid implements Credentials.
func (c *RedditCredentials) Valid() bool {
	return c != nil && c.ClientID != ""
}

// Ready implements Credentials.
func (c *RedditCredentials) Ready() bool {
	return c.Valid() && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// NewRedditCredentials merges partial into existing; existing fields win.
func NewRedditCredentials(partial, existing *RedditCredentials) *RedditCredentials {
	if existing == nil {
		return clonePtr(partial)
	}
	if partial == nil {
		return clonePtr(existing)
	}
	return &RedditCredentials{
		ClientID:     firstSet(existing.ClientID, partial.ClientID),
		Username:     firstSet(existing.Username, partial.Username),
		Subreddit:    firstSet(existing.Subreddit, partial.Subreddit),
		UserAgent:    firstSet(existing.UserAgent, partial.UserAgent),
		ClientSecret: firstSet(existing.ClientSecret, partial.ClientSecret),
		Password:     firstSet(existing.Password, partial.Password),
	}
}

// TwitterCredentials configures the message platform.
type TwitterCredentials struct {
	Account     string `yaml:"account"`
	BearerToken string `yaml:"-"`
}

// Kind implements Credentials.
func (c *TwitterCredentials) Kind() backend.Kind { return backend.KindTwitter }

// Valid implements Credentials.
func (c *TwitterCredentials) Valid() bool {
	return c != nil && (c.BearerToken != "" || c.Account != "")
}

// Ready implements Credentials.
func (c *TwitterCredentials) Ready() bool {
	return c != nil && c.BearerToken != ""
}

// NewTwitterCredentials merges partial into existing; existing fields win.
func NewTwitterCredentials(partial, existing *TwitterCredentials) *TwitterCredentials {
	if existing == nil {
		return clonePtr(partial)
	}
	if partial == nil {
		return clonePtr(existing)
	}
	return &TwitterCredentials{
		Account:     firstSet(existing.Account, partial.Account),
		BearerToken: firstSet(existing.BearerToken, partial.BearerToken),
	}
}

// validURL reports whether raw is an absolute http(s) URL. Empty is accepted when optional.
func validURL(raw string, optional bool) bool {
	if raw == "" {
		return optional
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}
