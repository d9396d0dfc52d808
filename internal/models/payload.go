// Package models defines the data shared by the outbox, the delivery client
// and the RSVP intake.
package models

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ListSeparator joins list-valued fields when a payload is form encoded.
const ListSeparator = ", "

// Payload is an opaque submission: field name to one or more values.
// A field with several values is a list (e.g. allergies); a field with an
// empty list encodes as the empty string.
type Payload map[string][]string

// Set replaces the field with a single value.
func (p Payload) Set(key, value string) {
	p[key] = []string{value}
}

// SetList replaces the field with a list of values. A nil list is stored as
// an empty one so the field is still sent.
func (p Payload) SetList(key string, values []string) {
	if values == nil {
		values = []string{}
	}
	p[key] = values
}

// Get returns the field value with list values joined.
func (p Payload) Get(key string) string {
	return strings.Join(p[key], ListSeparator)
}

// Keys returns the field names in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Form flattens the payload into url.Values, one value per field.
func (p Payload) Form() url.Values {
	form := make(url.Values, len(p))
	for k := range p {
		form.Set(k, p.Get(k))
	}
	return form
}

// Encode returns the application/x-www-form-urlencoded body.
func (p Payload) Encode() string {
	return p.Form().Encode()
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = append([]string{}, v...)
	}
	return c
}

// Marshal serializes the payload for storage.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPayload parses a payload produced by Marshal.
func UnmarshalPayload(data []byte) (Payload, error) {
	p := Payload{}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// OutboxEntry is a submission that could not be delivered immediately.
// Entries are never updated in place; replacement is delete + reinsert.
type OutboxEntry struct {
	ID         int64     `json:"id"`
	Payload    Payload   `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
