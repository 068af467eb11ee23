package module

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aheby/roombot/internal/command"
	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/internal/store"
	"github.com/aheby/roombot/matrix"
)

// highlightOperations maps each operation to its command aliases.
var highlightOperations = map[string][]string{
	"highlight_all":     {"!hlall", "!highlightall"},
	"highlight_group":   {"!hlg", "!highlightgroup", "!hlgroup"},
	"add_to_group":      {"!hla", "!hladd", "!highlightadd"},
	"delete_from_group": {"!hld", "!hldelete", "!highlightdelete"},
	"highlight":         {"!hl", "!highlight"},
}

// Highlight lets users keep named groups of room members and notify
// them in one message. Groups are room-scoped, case-insensitive, and
// persist across restarts.
//
//	!hla [group] [user1] [user2...]   add users to a group
//	!hld [group] [user1] [user2...]   delete users from a group
//	!hl [group] [optional text]       notify a group
//	!hlg [group] [optional text]      notify a group, sender included
//	!hlall [optional text]            notify everyone in the room
type Highlight struct {
	gateway    Gateway
	groups     *store.Groups
	onlineOnly bool
	alwaysRun  bool
	logger     *slog.Logger
}

// NewHighlight builds the highlight module. Fails when no group store
// is available, which disables the module.
func NewHighlight(cfg conf.HighlightConfig, gateway Gateway, groups *store.Groups, logger *slog.Logger) (*Highlight, error) {
	if groups == nil {
		return nil, fmt.Errorf("module: no database provided, highlight disabled")
	}
	return &Highlight{
		gateway:    gateway,
		groups:     groups,
		onlineOnly: cfg.OnlineOnly,
		alwaysRun:  cfg.AlwaysRun,
		logger:     logger,
	}, nil
}

func (h *Highlight) Name() string { return "highlight" }

func (h *Highlight) AlwaysRun() bool { return h.alwaysRun }

// Run branches on exactly one operation per message. A message that
// matches the module's command set but no branch is a bug in
// highlightOperations and returns ErrNoOperation.
func (h *Highlight) Run(ctx context.Context, room *matrix.Room, event matrix.Event, message string) (bool, error) {
	if !command.MatchesAny(highlightOperations, message) {
		return false, nil
	}

	var err error
	switch {
	case command.Matches(highlightOperations["highlight_all"], message):
		err = h.highlightAll(ctx, room, event.Sender, message)
	case command.Matches(highlightOperations["highlight_group"], message):
		err = h.highlightGroup(ctx, room, message)
	case command.Matches(highlightOperations["add_to_group"], message):
		err = h.addToGroup(ctx, room, message)
	case command.Matches(highlightOperations["delete_from_group"], message):
		err = h.deleteFromGroup(ctx, room, message)
	case command.Matches(highlightOperations["highlight"], message):
		err = h.highlight(ctx, room, event.Sender, message)
	default:
		err = fmt.Errorf("%w: %q", ErrNoOperation, command.Command(message))
	}
	return true, err
}

// highlightAll notifies every room member except the sender.
func (h *Highlight) highlightAll(ctx context.Context, room *matrix.Room, sender, message string) error {
	members, err := h.gateway.JoinedMembers(ctx, room.ID)
	if err != nil {
		return err
	}

	var userIDs []string
	for _, member := range members {
		if member.UserID == sender {
			continue
		}
		if h.onlineOnly && !h.isOnline(ctx, member.UserID) {
			continue
		}
		userIDs = append(userIDs, member.UserID)
	}

	if len(userIDs) == 0 {
		return h.gateway.SendText(ctx, room.ID, "No users to highlight")
	}
	return h.gateway.SendText(ctx, room.ID, withTrailer(strings.Join(userIDs, ", "), argumentText(message)))
}

// highlight notifies a stored group, excluding the sender. Stored
// members that are no longer resolvable in the room are dropped.
func (h *Highlight) highlight(ctx context.Context, room *matrix.Room, sender, message string) error {
	argument, ok := command.Argument(message)
	if !ok {
		return h.gateway.SendText(ctx, room.ID, "Correct syntax is !hl [group] [optional text].")
	}
	group, trailer := splitFirst(argument)

	stored, err := h.groups.Members(room.ID, group)
	if err != nil {
		return err
	}

	var userIDs []string
	for _, member := range stored {
		user, err := h.gateway.FindUser(ctx, room.ID, member)
		if err != nil {
			return err
		}
		if user == nil || user.UserID == sender {
			continue
		}
		if h.onlineOnly && !h.isOnline(ctx, user.UserID) {
			continue
		}
		userIDs = append(userIDs, user.UserID)
	}

	if len(userIDs) == 0 {
		return h.gateway.SendText(ctx, room.ID,
			fmt.Sprintf("Group %q does not have any members to highlight", strings.ToLower(group)))
	}
	return h.gateway.SendText(ctx, room.ID, withTrailer(strings.Join(userIDs, ", "), trailer))
}

// highlightGroup notifies every stored member of a group, sender
// included, without resolving room presence.
func (h *Highlight) highlightGroup(ctx context.Context, room *matrix.Room, message string) error {
	argument, ok := command.Argument(message)
	if !ok {
		return h.gateway.SendText(ctx, room.ID, "Correct syntax is !hlg [group] [optional text].")
	}
	group, trailer := splitFirst(argument)

	members, err := h.groups.Members(room.ID, group)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return h.gateway.SendText(ctx, room.ID, fmt.Sprintf("Group %q does not exist", strings.ToLower(group)))
	}
	return h.gateway.SendText(ctx, room.ID, withTrailer(strings.Join(members, ", "), trailer))
}

// addToGroup validates that every named user is in the room before
// mutating anything: one reply per missing user, zero insertions.
func (h *Highlight) addToGroup(ctx context.Context, room *matrix.Room, message string) error {
	group, users, ok := groupAndUsers(message)
	if !ok {
		return h.gateway.SendText(ctx, room.ID, "Correct syntax is !hla [group] [user1] [user2...].")
	}

	missing := false
	for _, user := range users {
		found, err := h.gateway.FindUser(ctx, room.ID, user)
		if err != nil {
			return err
		}
		if found == nil {
			missing = true
			if err := h.gateway.SendText(ctx, room.ID, fmt.Sprintf("User: %q is not in room", user)); err != nil {
				return err
			}
		}
	}
	if missing {
		return nil
	}

	var added []string
	for _, user := range users {
		inserted, err := h.groups.AddMember(room.ID, group, user)
		if err != nil {
			return err
		}
		if inserted {
			added = append(added, user)
		} else {
			h.logger.Debug("user already in group", "user", user, "group", group, "room", room.ID)
		}
	}

	if len(added) == 0 {
		return h.gateway.SendText(ctx, room.ID,
			fmt.Sprintf("Could not add %q to group %q", strings.Join(users, ", "), group))
	}
	return h.gateway.SendText(ctx, room.ID,
		fmt.Sprintf("Added %q to group %q", strings.Join(added, ", "), group))
}

// deleteFromGroup mirrors addToGroup: presence pre-validation, then
// idempotent removes, reporting only what was actually deleted.
func (h *Highlight) deleteFromGroup(ctx context.Context, room *matrix.Room, message string) error {
	group, users, ok := groupAndUsers(message)
	if !ok {
		return h.gateway.SendText(ctx, room.ID, "Correct syntax is !hld [group] [user1] [user2...].")
	}

	missing := false
	for _, user := range users {
		found, err := h.gateway.FindUser(ctx, room.ID, user)
		if err != nil {
			return err
		}
		if found == nil {
			missing = true
			if err := h.gateway.SendText(ctx, room.ID, fmt.Sprintf("User: %q is not in room", user)); err != nil {
				return err
			}
		}
	}
	if missing {
		return nil
	}

	var removed []string
	for _, user := range users {
		deleted, err := h.groups.RemoveMember(room.ID, group, user)
		if err != nil {
			return err
		}
		if deleted {
			removed = append(removed, user)
		}
	}

	if len(removed) == 0 {
		return h.gateway.SendText(ctx, room.ID,
			fmt.Sprintf("Could not remove %q from group %q", strings.Join(users, ", "), group))
	}
	return h.gateway.SendText(ctx, room.ID,
		fmt.Sprintf("Removed %q from group %q", strings.Join(removed, ", "), group))
}

func (h *Highlight) isOnline(ctx context.Context, userID string) bool {
	status, err := h.gateway.Presence(ctx, userID)
	if err != nil {
		h.logger.Debug("presence lookup failed", "user", userID, "error", err)
		return false
	}
	return status == "online"
}

// groupAndUsers parses "<group> <user>..." from a mutating command.
// ok is false when the group name or the user list is missing.
func groupAndUsers(message string) (group string, users []string, ok bool) {
	argument, ok := command.Argument(message)
	if !ok {
		return "", nil, false
	}
	fields := strings.Fields(argument)
	if len(fields) < 2 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// argumentText returns the message's argument, or "" when absent.
func argumentText(message string) string {
	argument, _ := command.Argument(message)
	return argument
}

// splitFirst splits "group [trailing text]" on the first whitespace run.
func splitFirst(argument string) (first, rest string) {
	idx := strings.IndexAny(argument, " \t")
	if idx < 0 {
		return argument, ""
	}
	return argument[:idx], strings.TrimLeft(argument[idx:], " \t")
}

// withTrailer appends user-supplied trailing text after a colon.
func withTrailer(body, trailer string) string {
	if trailer == "" {
		return body
	}
	return body + ": " + trailer
}
