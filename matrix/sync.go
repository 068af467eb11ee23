package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// syncTimeout is the long-poll timeout passed to /sync.
const syncTimeout = 30 * time.Second

// reconnectDelay is how long to wait before retrying after a failed
// sync. Retries continue indefinitely; missed events are not replayed.
const reconnectDelay = 5 * time.Second

// OnRoomMessage registers a handler for timeline events of one room.
// Handlers run serially on the sync goroutine, in registration order.
func (c *Client) OnRoomMessage(roomID string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomListeners[roomID] = append(c.roomListeners[roomID], handler)
}

// OnInvite registers a handler for room invites.
func (c *Client) OnInvite(handler InviteHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inviteHandlers = append(c.inviteHandlers, handler)
}

// OnLeave registers a handler for room departures.
func (c *Client) OnLeave(handler LeaveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveHandlers = append(c.leaveHandlers, handler)
}

// PendingInvites returns the invites that were already waiting when
// InitialSync ran. Invites arriving later go to OnInvite handlers.
func (c *Client) PendingInvites() []InviteEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	invites := make([]InviteEvent, len(c.pendingInvites))
	copy(invites, c.pendingInvites)
	return invites
}

// InitialSync performs the first /sync, seeding the room registry and
// recording invite-pending rooms. Timeline events from the initial sync
// are not dispatched; listeners only see events arriving afterwards.
func (c *Client) InitialSync(ctx context.Context) error {
	response, err := c.sync(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("matrix: initial sync failed: %w", err)
	}

	c.mu.Lock()
	c.nextBatch = response.NextBatch
	for roomID, joined := range response.Rooms.Join {
		c.applyRoomState(roomID, joined.State.Events)
		c.applyRoomState(roomID, joined.Timeline.Events)
	}
	for roomID, invited := range response.Rooms.Invite {
		c.pendingInvites = append(c.pendingInvites, InviteEvent{
			RoomID: roomID,
			Sender: inviteSender(invited.InviteState.Events, c.userID),
		})
	}
	c.mu.Unlock()

	c.logger.Info("initial sync complete",
		"rooms", len(response.Rooms.Join),
		"pending_invites", len(response.Rooms.Invite),
	)
	return nil
}

// Listen runs the incremental sync loop until ctx is cancelled. All
// events are delivered serially on this goroutine, in arrival order as
// returned by the homeserver. On sync failure it waits reconnectDelay
// and retries indefinitely.
func (c *Client) Listen(ctx context.Context) error {
	for {
		c.mu.RLock()
		since := c.nextBatch
		c.mu.RUnlock()

		response, err := c.sync(ctx, since, syncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("sync failed, retrying",
				"error", err,
				"retry_in", reconnectDelay,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		c.mu.Lock()
		c.nextBatch = response.NextBatch
		c.mu.Unlock()

		c.processSync(ctx, response)
	}
}

// processSync applies room state and dispatches events to listeners.
// Room order within one response is made deterministic by sorting IDs.
func (c *Client) processSync(ctx context.Context, response *syncResponse) {
	for _, roomID := range sortedKeys(response.Rooms.Invite) {
		invite := InviteEvent{
			RoomID: roomID,
			Sender: inviteSender(response.Rooms.Invite[roomID].InviteState.Events, c.userID),
		}
		c.mu.RLock()
		handlers := append([]InviteHandler(nil), c.inviteHandlers...)
		c.mu.RUnlock()
		for _, handler := range handlers {
			handler(ctx, invite)
		}
	}

	for _, roomID := range sortedKeys(response.Rooms.Join) {
		joined := response.Rooms.Join[roomID]
		c.mu.Lock()
		c.applyRoomState(roomID, joined.State.Events)
		c.applyRoomState(roomID, joined.Timeline.Events)
		room := c.rooms[roomID]
		listeners := append([]MessageHandler(nil), c.roomListeners[roomID]...)
		c.mu.Unlock()

		for _, event := range joined.Timeline.Events {
			for _, listener := range listeners {
				listener(ctx, room, event)
			}
		}
	}

	for _, roomID := range sortedKeys(response.Rooms.Leave) {
		leave := LeaveEvent{
			RoomID: roomID,
			Actor:  leaveActor(response.Rooms.Leave[roomID].Timeline.Events, c.userID),
		}
		c.mu.Lock()
		delete(c.rooms, roomID)
		delete(c.roomListeners, roomID)
		handlers := append([]LeaveHandler(nil), c.leaveHandlers...)
		c.mu.Unlock()
		for _, handler := range handlers {
			handler(ctx, leave)
		}
	}
}

// applyRoomState folds state events into the room registry entry,
// creating it if needed. Caller holds c.mu.
func (c *Client) applyRoomState(roomID string, events []Event) {
	room, ok := c.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		c.rooms[roomID] = room
	}
	for _, event := range events {
		switch event.Type {
		case "m.room.canonical_alias":
			if alias, ok := event.Content["alias"].(string); ok {
				room.CanonicalAlias = alias
			}
			if alts, ok := event.Content["alt_aliases"].([]any); ok {
				room.AltAliases = room.AltAliases[:0]
				for _, alt := range alts {
					if s, ok := alt.(string); ok {
						room.AltAliases = append(room.AltAliases, s)
					}
				}
			}
		case "m.room.name":
			if name, ok := event.Content["name"].(string); ok {
				room.Name = name
			}
		case "m.room.join_rules":
			if rule, ok := event.Content["join_rule"].(string); ok {
				room.JoinRule = rule
			}
		}
	}
}

// inviteSender resolves the inviting user from invite state: the
// m.room.member event inviting ownUserID. Falls back to UnknownSender.
func inviteSender(events []Event, ownUserID string) string {
	for _, event := range events {
		if event.Type != "m.room.member" {
			continue
		}
		if event.StateKey == nil || *event.StateKey != ownUserID {
			continue
		}
		if membership, _ := event.Content["membership"].(string); membership != "invite" {
			continue
		}
		if event.Sender != "" {
			return event.Sender
		}
	}
	return UnknownSender
}

// leaveActor resolves who removed the bot from a room: the sender of
// the last membership event about the bot that the bot did not send
// itself. Falls back to UnknownSender.
func leaveActor(events []Event, ownUserID string) string {
	actor := UnknownSender
	for _, event := range events {
		if event.Type != "m.room.member" {
			continue
		}
		if event.StateKey == nil || *event.StateKey != ownUserID {
			continue
		}
		if event.Sender != "" && event.Sender != ownUserID {
			actor = event.Sender
		}
	}
	return actor
}

// sync calls /sync. A zero timeout asks the server to return
// immediately; otherwise the request long-polls.
func (c *Client) sync(ctx context.Context, since string, timeout time.Duration) (*syncResponse, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))

	requestCtx := ctx
	if timeout > 0 {
		// Give the transport headroom beyond the server-side long poll.
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, timeout+reconnectDelay)
		defer cancel()
	}

	body, err := c.doRequest(requestCtx, http.MethodGet, "/_matrix/client/v3/sync", query, nil)
	if err != nil {
		return nil, err
	}
	var response syncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse sync response: %w", err)
	}
	return &response, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
