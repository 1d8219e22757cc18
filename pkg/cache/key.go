package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// Key identifies a cached ESI response. It is a SHA-1 hex digest of the
// request identity and carries no other state.
type Key string

// Identity is the part of a request that determines its cache key.
type Identity struct {
	// Method is the HTTP method (case-insensitive)
	Method string

	// URL is the canonical request path, e.g. "latest/characters/1/"
	URL string

	// Params are the query parameters
	Params url.Values

	// Auth is the resolved Authorization header value ("" for public endpoints)
	Auth string
}

// NewKey derives the cache key for a request identity.
//
// Query parameters are encoded as a JSON object, so the key does not depend
// on the order in which parameters were added. Nil and empty parameter sets
// produce the same key.
func NewKey(id Identity) Key {
	params := id.Params
	if len(params) == 0 {
		params = nil
	}

	// Marshalling a struct of strings and url.Values cannot fail.
	data, _ := json.Marshal(struct {
		Method string     `json:"method"`
		URL    string     `json:"url"`
		Params url.Values `json:"params"`
		Auth   string     `json:"auth"`
	}{
		Method: strings.ToUpper(id.Method),
		URL:    id.URL,
		Params: params,
		Auth:   id.Auth,
	})

	sum := sha1.Sum(data)
	return Key(hex.EncodeToString(sum[:]))
}

// String returns the digest.
func (k Key) String() string {
	return string(k)
}

// Response returns the namespace holding the full cached response.
func (k Key) Response() string {
	return string(k) + ":response"
}

// ETag returns the namespace holding the validator and last-known body.
func (k Key) ETag() string {
	return string(k) + ":etag"
}
