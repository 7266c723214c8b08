package schema

import (
	"testing"
)

func TestChangeEvent_Ownership(t *testing.T) {
	folder := int64(2)
	old := Goal{ID: 5, UserID: "alice", FolderID: &folder}
	moved := old.Clone()
	moved.FolderID = nil

	ev, err := NewChangeEvent(EventUpdate, TableGoals, old, moved, "alice")
	if err != nil {
		t.Fatalf("NewChangeEvent: %v", err)
	}
	if !ev.OwnedBy("alice") {
		t.Error("event should be owned by alice")
	}
	if ev.OwnedBy("bob") {
		t.Error("event should not be owned by bob")
	}
	if !ev.TouchesFolder(&folder) {
		t.Error("move out of folder 2 should touch folder 2")
	}
	if !ev.TouchesFolder(nil) {
		t.Error("move into unorganized should touch the unorganized bucket")
	}
	other := int64(7)
	if ev.TouchesFolder(&other) {
		t.Error("event should not touch folder 7")
	}
	if id, ok := ev.RowID(); !ok || id != 5 {
		t.Errorf("RowID() = %d, %v", id, ok)
	}
	if !ev.VisibleTo("alice") || ev.VisibleTo("bob") {
		t.Error("audience check failed")
	}
}

func TestChangeEvent_Delete(t *testing.T) {
	ev, err := NewChangeEvent(EventDelete, TableGoals, Goal{ID: 9, UserID: "alice"}, nil)
	if err != nil {
		t.Fatalf("NewChangeEvent: %v", err)
	}
	if len(ev.New) != 0 {
		t.Errorf("delete should carry no new row, got %s", ev.New)
	}
	if !ev.OwnedBy("alice") {
		t.Error("delete should match on the old row")
	}
	g, err := DecodeRow[Goal](ev.Old)
	if err != nil || g.ID != 9 {
		t.Errorf("DecodeRow = %+v, %v", g, err)
	}
	if _, err := DecodeRow[Goal](ev.New); err == nil {
		t.Error("decoding an empty row should fail")
	}
}

func TestParseEventType(t *testing.T) {
	for _, s := range []string{"", "*", "INSERT", "UPDATE", "DELETE"} {
		if _, err := ParseEventType(s); err != nil {
			t.Errorf("ParseEventType(%q): %v", s, err)
		}
	}
	if _, err := ParseEventType("insert"); err == nil {
		t.Error("lowercase should be rejected")
	}
	if !EventAll.Matches(EventDelete) || EventInsert.Matches(EventDelete) {
		t.Error("Matches mismatch")
	}
}
