package flume

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// The API encodes timestamps without a zone; they are always UTC.
const timeLayout = "2006-01-02T15:04:05.999999"

// Time wraps [time.Time] to match the API's timestamp encoding.
type Time struct {
	time.Time
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timeLayout))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.Parse(timeLayout, s)
	if err != nil {
		// Some endpoints echo zoned timestamps back.
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed

	return nil
}

// Activity is a single actor-verb-object event in a feed.
//
// The server accepts and returns arbitrary additional fields alongside the
// well-known ones; those round-trip through Extra.
type Activity struct {
	ID        string
	Actor     string
	Verb      string
	Object    string
	Target    string
	ForeignID string
	Time      Time
	To        []string
	Extra     map[string]any
}

func (a Activity) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+8)
	for k, v := range a.Extra {
		m[k] = v
	}

	// Known fields win over anything colliding in Extra.
	if a.ID != "" {
		m["id"] = a.ID
	}
	if a.Actor != "" {
		m["actor"] = a.Actor
	}
	if a.Verb != "" {
		m["verb"] = a.Verb
	}
	if a.Object != "" {
		m["object"] = a.Object
	}
	if a.Target != "" {
		m["target"] = a.Target
	}
	if a.ForeignID != "" {
		m["foreign_id"] = a.ForeignID
	}
	if !a.Time.IsZero() {
		m["time"] = a.Time
	}
	if len(a.To) > 0 {
		m["to"] = a.To
	}

	return json.Marshal(m)
}

func (a *Activity) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	take := func(key string, into any) error {
		raw, ok := m[key]
		if !ok {
			return nil
		}
		delete(m, key)
		return json.Unmarshal(raw, into)
	}

	for key, into := range map[string]any{
		"id":         &a.ID,
		"actor":      &a.Actor,
		"verb":       &a.Verb,
		"object":     &a.Object,
		"target":     &a.Target,
		"foreign_id": &a.ForeignID,
		"time":       &a.Time,
		"to":         &a.To,
	} {
		if err := take(key, into); err != nil {
			return err
		}
	}

	if len(m) > 0 {
		a.Extra = make(map[string]any, len(m))
		for k, raw := range m {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			a.Extra[k] = v
		}
	}

	return nil
}

// NewForeignID returns a fresh client-assigned foreign id for an activity.
func NewForeignID() string {
	return uuid.NewString()
}

// ActivityRef targets an existing activity for mutation, either by its
// server-assigned id or by its client-assigned foreign id. The two modes are
// mutually exclusive and chosen purely by which constructor built the ref.
type ActivityRef struct {
	id        string
	byForeign bool
}

// ByID refers to an activity by its server-assigned id.
func ByID(id string) ActivityRef {
	return ActivityRef{id: id}
}

// ByForeignID refers to an activity by its client-assigned foreign id.
func ByForeignID(foreignID string) ActivityRef {
	return ActivityRef{id: foreignID, byForeign: true}
}
