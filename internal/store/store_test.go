package store

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) *Groups {
	t.Helper()
	groups, err := Open(filepath.Join(t.TempDir(), "groups.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { groups.Close() })
	return groups
}

func TestAddMemberIdempotent(t *testing.T) {
	groups := openTestStore(t)

	inserted, err := groups.AddMember("!room:x", "Group", "alice")
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if !inserted {
		t.Error("first add should insert a row")
	}

	inserted, err = groups.AddMember("!room:x", "Group", "alice")
	if err != nil {
		t.Fatalf("second AddMember failed: %v", err)
	}
	if inserted {
		t.Error("second add should report already a member")
	}

	members, err := groups.Members("!room:x", "Group")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("expected exactly one stored row, got %d", len(members))
	}
}

func TestGroupNamesAreCaseInsensitive(t *testing.T) {
	groups := openTestStore(t)

	if _, err := groups.AddMember("!room:x", "Group", "alice"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := groups.AddMember("!room:x", "GROUP", "bob"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	lower, err := groups.Members("!room:x", "group")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	upper, err := groups.Members("!room:x", "Group")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if !reflect.DeepEqual(lower, upper) {
		t.Errorf("case variants returned different sets: %v vs %v", lower, upper)
	}
	if !reflect.DeepEqual(lower, []string{"alice", "bob"}) {
		t.Errorf("unexpected members: %v", lower)
	}
}

func TestMembersInsertionOrder(t *testing.T) {
	groups := openTestStore(t)

	for _, member := range []string{"carol", "alice", "bob"} {
		if _, err := groups.AddMember("!room:x", "team", member); err != nil {
			t.Fatalf("AddMember(%s) failed: %v", member, err)
		}
	}

	members, err := groups.Members("!room:x", "team")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if !reflect.DeepEqual(members, []string{"carol", "alice", "bob"}) {
		t.Errorf("members not in insertion order: %v", members)
	}
}

func TestRemoveMember(t *testing.T) {
	groups := openTestStore(t)

	if _, err := groups.AddMember("!room:x", "team", "alice"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	deleted, err := groups.RemoveMember("!room:x", "TEAM", "alice")
	if err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if !deleted {
		t.Error("remove of existing member should report a deleted row")
	}

	deleted, err = groups.RemoveMember("!room:x", "team", "alice")
	if err != nil {
		t.Fatalf("second RemoveMember failed: %v", err)
	}
	if deleted {
		t.Error("remove of absent member should be a no-op")
	}

	members, err := groups.Members("!room:x", "team")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("group should be empty, got %v", members)
	}
}

func TestIsMember(t *testing.T) {
	groups := openTestStore(t)

	if _, err := groups.AddMember("!room:x", "team", "alice"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	tests := []struct {
		room, group, member string
		want                bool
	}{
		{"!room:x", "team", "alice", true},
		{"!room:x", "Team", "alice", true},
		{"!room:x", "team", "bob", false},
		{"!other:x", "team", "alice", false},
	}
	for _, tt := range tests {
		got, err := groups.IsMember(tt.room, tt.group, tt.member)
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsMember(%s, %s, %s) = %v, want %v", tt.room, tt.group, tt.member, got, tt.want)
		}
	}
}

func TestGroupsAreRoomScoped(t *testing.T) {
	groups := openTestStore(t)

	if _, err := groups.AddMember("!one:x", "team", "alice"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := groups.AddMember("!two:x", "team", "bob"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	one, err := groups.Members("!one:x", "team")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if !reflect.DeepEqual(one, []string{"alice"}) {
		t.Errorf("room one has unexpected members: %v", one)
	}
}
