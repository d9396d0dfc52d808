package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrCorruptSnapshot is returned when a stored record fails validation.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is an immutable capture of a response.
type Snapshot struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
	Digest   string      `json:"digest"`
}

// headers that describe a single transfer and are not replayed
var transferHeaders = []string{
	"Connection", "Keep-Alive", "Transfer-Encoding", "Content-Length",
	"Set-Cookie", "Trailer", "Upgrade", "Proxy-Connection",
}

// NewSnapshot copies header and body into a new snapshot for key.
func NewSnapshot(key string, status int, header http.Header, body []byte, at time.Time) *Snapshot {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	for _, name := range transferHeaders {
		h.Del(name)
	}

	return &Snapshot{
		Key:      key,
		Status:   status,
		Header:   h,
		Body:     append([]byte(nil), body...),
		StoredAt: at.UTC(),
		Digest:   digest(body),
	}
}

func digest(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// offlineSnapshot is the synthetic response served when nothing else is
// available.
func offlineSnapshot(key string, at time.Time) *Snapshot {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	return NewSnapshot(key, http.StatusServiceUnavailable, h, []byte("Offline"), at)
}

// OK reports a 2xx status.
func (s *Snapshot) OK() bool {
	return s.Status >= 200 && s.Status <= 299
}

// ETag returns the origin validator, or a strong one derived from the body
// digest.
func (s *Snapshot) ETag() string {
	if tag := s.Header.Get("ETag"); tag != "" {
		return tag
	}
	return `"` + s.Digest[:32] + `"`
}

// Write replays the snapshot to w.
func (s *Snapshot) Write(w http.ResponseWriter) {
	h := w.Header()
	for k, v := range s.Header {
		h[k] = append([]string(nil), v...)
	}
	if s.OK() && h.Get("ETag") == "" {
		h.Set("ETag", s.ETag())
	}
	h.Set("Content-Length", strconv.Itoa(len(s.Body)))
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// NotModified reports whether the If-None-Match header of r matches the
// snapshot validator.
func (s *Snapshot) NotModified(r *http.Request) bool {
	inm := r.Header.Get("If-None-Match")
	if inm == "" || !s.OK() {
		return false
	}
	tag := s.ETag()
	for _, candidate := range splitTags(inm) {
		if candidate == "*" || weakEqual(candidate, tag) {
			return true
		}
	}
	return false
}

func splitTags(v string) []string {
	var out []string
	start := 0
	inQuote := false
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, strings.TrimSpace(v[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(v[start:]))
}

func weakEqual(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}

func marshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	switch {
	case s.Key == "":
		return nil, fmt.Errorf("%w: missing key", ErrCorruptSnapshot)
	case s.Status < 100 || s.Status > 599:
		return nil, fmt.Errorf("%w: status %d", ErrCorruptSnapshot, s.Status)
	case s.Digest != digest(s.Body):
		return nil, fmt.Errorf("%w: digest mismatch for %s", ErrCorruptSnapshot, s.Key)
	}
	if s.Header == nil {
		s.Header = http.Header{}
	}
	return &s, nil
}
