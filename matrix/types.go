package matrix

import "context"

// Room describes a room known to the client, assembled from /sync state.
type Room struct {
	// ID is the opaque room identifier (e.g. "!abc:example.org").
	ID string
	// CanonicalAlias is the room's canonical alias, if any
	// (e.g. "#lounge:example.org").
	CanonicalAlias string
	// Name is the human-facing display name, if any.
	Name string
	// AltAliases lists alternate aliases published for the room.
	AltAliases []string
	// JoinRule is the room's join rule ("public", "invite", ...).
	JoinRule string
}

// InviteOnly reports whether the room requires an invite to join.
func (r *Room) InviteOnly() bool {
	return r.JoinRule == "invite"
}

// Member is one joined member of a room.
type Member struct {
	UserID      string
	DisplayName string
}

// Event is a single Matrix event as delivered by /sync.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	StateKey       *string        `json:"state_key,omitempty"`
	Content        map[string]any `json:"content"`
}

// MessageType returns the msgtype of an m.room.message event
// ("m.text", "m.image", ...), or "" if absent.
func (e Event) MessageType() string {
	s, _ := e.Content["msgtype"].(string)
	return s
}

// Body returns the body of an m.room.message event, or "" if absent.
func (e Event) Body() string {
	s, _ := e.Content["body"].(string)
	return s
}

// InviteEvent is delivered to invite listeners when the bot is invited
// to a room. Sender is the inviting user, or UnknownSender when the
// invite state did not carry a resolvable inviter.
type InviteEvent struct {
	RoomID string
	Sender string
}

// LeaveEvent is delivered to leave listeners when the bot is kicked
// from or leaves a room. Actor is the user responsible, best-effort
// from the leave timeline, or UnknownSender when unresolvable.
type LeaveEvent struct {
	RoomID string
	Actor  string
}

// UnknownSender is the sentinel used when an invite or leave payload
// carries no resolvable responsible user.
const UnknownSender = "someone"

// MessageHandler receives timeline events for one room.
type MessageHandler func(ctx context.Context, room *Room, event Event)

// InviteHandler receives room invites.
type InviteHandler func(ctx context.Context, invite InviteEvent)

// LeaveHandler receives room departures.
type LeaveHandler func(ctx context.Context, leave LeaveEvent)

// syncResponse is the subset of the /sync response the client consumes.
type syncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     roomsSection `json:"rooms"`
}

type roomsSection struct {
	Join   map[string]joinedRoom  `json:"join,omitempty"`
	Invite map[string]invitedRoom `json:"invite,omitempty"`
	Leave  map[string]leftRoom    `json:"leave,omitempty"`
}

type joinedRoom struct {
	State    stateSection    `json:"state"`
	Timeline timelineSection `json:"timeline"`
}

type invitedRoom struct {
	InviteState stateSection `json:"invite_state"`
}

type leftRoom struct {
	Timeline timelineSection `json:"timeline"`
}

type stateSection struct {
	Events []Event `json:"events"`
}

type timelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}
