package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Entry represents a cached ESI response. Entries are never modified after
// they are written; a later write under the same key replaces them.
type Entry struct {
	// Status is the HTTP status code of the cached response
	Status int `json:"status"`

	// StatusText is the reason phrase, e.g. "OK"
	StatusText string `json:"statusText"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// URL is the request URL the response was fetched from
	URL string `json:"url"`
}

// ETagEntry holds a validator together with the body it validates.
type ETagEntry struct {
	ETag string `json:"etag"`
	Data []byte `json:"data"`
}

// Encode serializes the entry for storage.
func (e *Entry) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// DecodeEntry parses a stored response entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Status == 0 {
		return nil, fmt.Errorf("%w: missing status", ErrInvalidEntry)
	}
	return &entry, nil
}

// Encode serializes the validator entry for storage.
func (e *ETagEntry) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal etag entry: %w", err)
	}
	return data, nil
}

// DecodeETagEntry parses a stored validator entry.
func DecodeETagEntry(data []byte) (*ETagEntry, error) {
	var entry ETagEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.ETag == "" {
		return nil, fmt.Errorf("%w: missing etag", ErrInvalidEntry)
	}
	return &entry, nil
}
