package cache

import (
	"errors"
	"net/http"
	"testing"
)

func TestEntry_EncodeDecode(t *testing.T) {
	entry := &Entry{
		Status:     200,
		StatusText: "OK",
		Headers:    http.Header{"Etag": []string{`"abc"`}},
		Data:       []byte(`{"name":"CCP Bartender"}`),
		URL:        "https://esi.evetech.net/latest/characters/1/",
	}

	data, err := entry.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry() error = %v", err)
	}
	if got.Status != entry.Status || got.StatusText != entry.StatusText || got.URL != entry.URL {
		t.Errorf("DecodeEntry() = %+v, want %+v", got, entry)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}
	if got.Headers.Get("ETag") != `"abc"` {
		t.Errorf("ETag header = %q", got.Headers.Get("ETag"))
	}
}

func TestDecodeEntry_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "garbage"},
		{name: "missing status", data: `{"data":"e30="}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEntry([]byte(tt.data))
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("DecodeEntry() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestDecodeETagEntry(t *testing.T) {
	entry := &ETagEntry{ETag: `"v1"`, Data: []byte(`[1,2,3]`)}
	data, err := entry.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := DecodeETagEntry(data)
	if err != nil {
		t.Fatalf("DecodeETagEntry() error = %v", err)
	}
	if got.ETag != `"v1"` || string(got.Data) != `[1,2,3]` {
		t.Errorf("DecodeETagEntry() = %+v", got)
	}

	if _, err := DecodeETagEntry([]byte(`{"data":null}`)); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("missing etag: error = %v, want ErrInvalidEntry", err)
	}
}
