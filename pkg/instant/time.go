package instant

import (
	"bytes"
	"encoding/json"
	"time"
)

// Time is a time.Time that decodes from any shape Parse understands and
// encodes with Layout. Undecodable values decode to the zero Time.
type Time struct {
	time.Time
}

// New wraps t as a *Time.
func New(t time.Time) *Time {
	return &Time{Time: t.UTC()}
}

// Valid reports whether t holds a usable instant.
func (t *Time) Valid() bool {
	return t != nil && !t.IsZero()
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(Format(t.Time))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, ok := Parse(raw)
	if !ok {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}
