package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of row change carried by a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// ParseEventType accepts INSERT, UPDATE, DELETE or * (empty means *).
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case "", EventAll:
		return EventAll, nil
	case EventInsert, EventUpdate, EventDelete:
		return EventType(s), nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Matches reports whether an event of type e passes the filter f.
func (f EventType) Matches(e EventType) bool {
	return f == EventAll || f == "" || f == e
}

// ChangeEvent is a row-level change delivered by the realtime feed.
// Old is empty for inserts and New is empty for deletes.
type ChangeEvent struct {
	Event           EventType       `json:"event"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Filter          string          `json:"filter,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	New             json.RawMessage `json:"new,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`

	// Audience lists the identities allowed to see this event. Never sent.
	Audience []string `json:"-"`
}

// NewChangeEvent builds an event from typed rows. Pass nil for a missing side.
func NewChangeEvent(event EventType, table string, old, new any, audience ...string) (ChangeEvent, error) {
	ev := ChangeEvent{
		Event:           event,
		Schema:          PublicSchema,
		Table:           table,
		CommitTimestamp: time.Now().UTC(),
		Audience:        audience,
	}
	var err error
	if old != nil {
		if ev.Old, err = json.Marshal(old); err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal old row: %w", err)
		}
	}
	if new != nil {
		if ev.New, err = json.Marshal(new); err != nil {
			return ChangeEvent{}, fmt.Errorf("failed to marshal new row: %w", err)
		}
	}
	return ev, nil
}

// VisibleTo reports whether identity may receive the event.
func (e ChangeEvent) VisibleTo(identity string) bool {
	for _, a := range e.Audience {
		if a == identity {
			return true
		}
	}
	return false
}

// rowOwner is the subset of columns shared by every owned row.
type rowOwner struct {
	UserID   string `json:"user_id"`
	FolderID *int64 `json:"folder_id"`
	ID       int64  `json:"id"`
}

func peek(raw json.RawMessage) (rowOwner, bool) {
	if len(raw) == 0 {
		return rowOwner{}, false
	}
	var r rowOwner
	if err := json.Unmarshal(raw, &r); err != nil {
		return rowOwner{}, false
	}
	return r, true
}

// OwnedBy reports whether either side of the event belongs to identity.
func (e ChangeEvent) OwnedBy(identity string) bool {
	if r, ok := peek(e.New); ok && r.UserID == identity {
		return true
	}
	if r, ok := peek(e.Old); ok && r.UserID == identity {
		return true
	}
	return false
}

// TouchesFolder reports whether either side of the event sits in folderID
// (nil = unorganized). A move between folders touches both.
func (e ChangeEvent) TouchesFolder(folderID *int64) bool {
	for _, raw := range []json.RawMessage{e.New, e.Old} {
		r, ok := peek(raw)
		if !ok {
			continue
		}
		if (Goal{FolderID: r.FolderID}).InFolder(folderID) {
			return true
		}
	}
	return false
}

// RowID returns the id from New, falling back to Old.
func (e ChangeEvent) RowID() (int64, bool) {
	if r, ok := peek(e.New); ok && r.ID != 0 {
		return r.ID, true
	}
	if r, ok := peek(e.Old); ok && r.ID != 0 {
		return r.ID, true
	}
	return 0, false
}

// DecodeRow unmarshals a raw row into T.
func DecodeRow[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("empty row")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode row: %w", err)
	}
	return v, nil
}
