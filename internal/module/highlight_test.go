package module

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/internal/store"
	"github.com/aheby/roombot/matrix"
)

// fakeGateway records sent messages and serves a fixed member list.
type fakeGateway struct {
	members  map[string][]matrix.Member
	presence map[string]string
	sent     []string
}

func (f *fakeGateway) SendText(_ context.Context, roomID, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeGateway) JoinedMembers(_ context.Context, roomID string) ([]matrix.Member, error) {
	return f.members[roomID], nil
}

func (f *fakeGateway) FindUser(_ context.Context, roomID, ref string) (*matrix.Member, error) {
	for _, member := range f.members[roomID] {
		if strings.EqualFold(member.UserID, ref) ||
			(member.DisplayName != "" && strings.EqualFold(member.DisplayName, ref)) {
			m := member
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) Presence(_ context.Context, userID string) (string, error) {
	if status, ok := f.presence[userID]; ok {
		return status, nil
	}
	return "offline", nil
}

const testRoomID = "!room:x"

func newHighlightFixture(t *testing.T, members ...matrix.Member) (*Highlight, *fakeGateway, *store.Groups) {
	t.Helper()
	gateway := &fakeGateway{members: map[string][]matrix.Member{testRoomID: members}}
	groups, err := store.Open(filepath.Join(t.TempDir(), "groups.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { groups.Close() })

	highlight, err := NewHighlight(conf.HighlightConfig{}, gateway, groups, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewHighlight failed: %v", err)
	}
	return highlight, gateway, groups
}

func runHighlight(t *testing.T, h *Highlight, sender, message string) bool {
	t.Helper()
	claimed, err := h.Run(context.Background(), &matrix.Room{ID: testRoomID},
		matrix.Event{Type: "m.room.message", Sender: sender}, message)
	if err != nil {
		t.Fatalf("Run(%q) failed: %v", message, err)
	}
	return claimed
}

func lastSent(t *testing.T, gateway *fakeGateway) string {
	t.Helper()
	if len(gateway.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return gateway.sent[len(gateway.sent)-1]
}

func TestHighlightAll(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	if !runHighlight(t, h, "sender", "!hlall") {
		t.Error("message should be claimed")
	}
	if got := lastSent(t, gateway); got != "bob" {
		t.Errorf("reply = %q, want %q", got, "bob")
	}
}

func TestHighlightAllWithTrailingText(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "alice"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hlall anyone up for chess?")
	if got := lastSent(t, gateway); got != "alice, bob: anyone up for chess?" {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightAllNobodyElse(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t, matrix.Member{UserID: "sender"})

	runHighlight(t, h, "sender", "!hlall")
	if got := lastSent(t, gateway); got != "No users to highlight" {
		t.Errorf("reply = %q", got)
	}
}

func TestAddToGroup(t *testing.T) {
	h, gateway, groups := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
		matrix.Member{UserID: "carol"},
	)

	runHighlight(t, h, "sender", "!hla Team bob carol")
	if got := lastSent(t, gateway); got != `Added "bob, carol" to group "team"` {
		t.Errorf("reply = %q", got)
	}

	members, err := groups.Members(testRoomID, "team")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("stored members = %v", members)
	}
}

func TestAddToGroupMissingUserInsertsNothing(t *testing.T) {
	h, gateway, groups := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	if !runHighlight(t, h, "sender", "!hla team alice") {
		t.Error("message should be claimed even on failure")
	}
	if got := lastSent(t, gateway); got != `User: "alice" is not in room` {
		t.Errorf("reply = %q", got)
	}

	members, err := groups.Members(testRoomID, "team")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("no rows should be inserted, got %v", members)
	}
}

func TestAddToGroupOneMissingAbortsAll(t *testing.T) {
	h, _, groups := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hla team bob ghost")

	members, _ := groups.Members(testRoomID, "team")
	if len(members) != 0 {
		t.Errorf("present member must not be inserted when another is missing: %v", members)
	}
}

func TestAddToGroupAlreadyMember(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hla team bob")
	runHighlight(t, h, "sender", "!hla team bob")
	if got := lastSent(t, gateway); got != `Could not add "bob" to group "team"` {
		t.Errorf("reply = %q", got)
	}
}

func TestAddToGroupSyntaxError(t *testing.T) {
	h, gateway, groups := newHighlightFixture(t, matrix.Member{UserID: "sender"})

	for _, message := range []string{"!hla", "!hla team"} {
		runHighlight(t, h, "sender", message)
		if got := lastSent(t, gateway); got != "Correct syntax is !hla [group] [user1] [user2...]." {
			t.Errorf("%q: reply = %q", message, got)
		}
	}
	if members, _ := groups.Members(testRoomID, "team"); len(members) != 0 {
		t.Error("syntax errors must not touch the store")
	}
}

func TestDeleteFromGroup(t *testing.T) {
	h, gateway, groups := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hla team bob")
	runHighlight(t, h, "sender", "!hld team bob")
	if got := lastSent(t, gateway); got != `Removed "bob" from group "team"` {
		t.Errorf("reply = %q", got)
	}
	if members, _ := groups.Members(testRoomID, "team"); len(members) != 0 {
		t.Errorf("member not removed: %v", members)
	}

	runHighlight(t, h, "sender", "!hld team bob")
	if got := lastSent(t, gateway); got != `Could not remove "bob" from group "team"` {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightEmptyGroup(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t, matrix.Member{UserID: "sender"})

	runHighlight(t, h, "sender", "!hl team")
	if got := lastSent(t, gateway); got != `Group "team" does not have any members to highlight` {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightGroupMembers(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
		matrix.Member{UserID: "carol"},
	)

	runHighlight(t, h, "sender", "!hla team bob carol")
	runHighlight(t, h, "sender", "!hl team anyone comfortable with Perl?")
	if got := lastSent(t, gateway); got != "bob, carol: anyone comfortable with Perl?" {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightExcludesSender(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hla team bob sender")
	runHighlight(t, h, "sender", "!hl team")
	if got := lastSent(t, gateway); got != "bob" {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightSyntaxError(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t, matrix.Member{UserID: "sender"})

	runHighlight(t, h, "sender", "!hl")
	if got := lastSent(t, gateway); got != "Correct syntax is !hl [group] [optional text]." {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightGroupOperation(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t,
		matrix.Member{UserID: "sender"},
		matrix.Member{UserID: "bob"},
	)

	runHighlight(t, h, "sender", "!hla team bob sender")
	runHighlight(t, h, "sender", "!hlg team")
	// highlight_group notifies the stored list verbatim, sender included.
	if got := lastSent(t, gateway); got != "bob, sender" {
		t.Errorf("reply = %q", got)
	}

	runHighlight(t, h, "sender", "!hlg nowhere")
	if got := lastSent(t, gateway); got != `Group "nowhere" does not exist` {
		t.Errorf("reply = %q", got)
	}
}

func TestHighlightOnlineOnly(t *testing.T) {
	gateway := &fakeGateway{
		members: map[string][]matrix.Member{testRoomID: {
			{UserID: "sender"}, {UserID: "bob"}, {UserID: "carol"},
		}},
		presence: map[string]string{"bob": "online"},
	}
	groups, err := store.Open(filepath.Join(t.TempDir(), "groups.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { groups.Close() })

	h, err := NewHighlight(conf.HighlightConfig{OnlineOnly: true}, gateway, groups, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewHighlight failed: %v", err)
	}

	runHighlight(t, h, "sender", "!hlall")
	if got := lastSent(t, gateway); got != "bob" {
		t.Errorf("only online members should be highlighted, got %q", got)
	}
}

func TestHighlightUnmatchedMessage(t *testing.T) {
	h, gateway, _ := newHighlightFixture(t, matrix.Member{UserID: "sender"})

	claimed, err := h.Run(context.Background(), &matrix.Room{ID: testRoomID},
		matrix.Event{Sender: "sender"}, "just chatting")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if claimed {
		t.Error("unmatched message must not be claimed")
	}
	if len(gateway.sent) != 0 {
		t.Errorf("nothing should be sent, got %v", gateway.sent)
	}
}

func TestNewHighlightWithoutDatabase(t *testing.T) {
	if _, err := NewHighlight(conf.HighlightConfig{}, &fakeGateway{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error without a database")
	}
}
