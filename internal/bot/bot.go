// Package bot wires the chat gateway to the behavior modules: the
// admission controller decides which rooms to join, the dispatch
// pipeline routes each incoming text message through the registered
// modules in order.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aheby/roombot/matrix"
)

// Gateway is the slice of the chat gateway the admission controller
// uses.
type Gateway interface {
	// Rooms returns the rooms currently known to the gateway.
	Rooms() map[string]*matrix.Room
	// FindRoom resolves a symbolic room reference, or nil.
	FindRoom(ref string) *matrix.Room
	// JoinRoom joins a room by ID or alias.
	JoinRoom(ctx context.Context, ref string) (*matrix.Room, error)
	// PendingInvites returns invites already waiting at startup.
	PendingInvites() []matrix.InviteEvent
	// OnRoomMessage registers a per-room timeline listener.
	OnRoomMessage(roomID string, handler matrix.MessageHandler)
	// OnInvite registers an invite listener.
	OnInvite(handler matrix.InviteHandler)
	// OnLeave registers a leave listener.
	OnLeave(handler matrix.LeaveHandler)
}

// Config is the bot's admission policy, populated once at startup and
// immutable during the run loop.
type Config struct {
	// UserID is the bot's own identity; its messages are ignored.
	UserID string
	// ListenRooms are joined unconditionally at startup.
	ListenRooms []string
	// AllowedInviters restricts invites; empty means open policy.
	AllowedInviters []string
	// Whitelist, when non-empty, is the only set of joinable rooms and
	// takes precedence over Blacklist.
	Whitelist []string
	// Blacklist rooms are refused when no whitelist is configured.
	Blacklist []string
}

// Bot is the admission controller plus the dispatch pipeline.
type Bot struct {
	cfg      Config
	gateway  Gateway
	pipeline *Pipeline
	logger   *slog.Logger
}

// New builds a Bot. The module order of pipeline is the dispatch order.
func New(cfg Config, gateway Gateway, pipeline *Pipeline, logger *slog.Logger) *Bot {
	return &Bot{cfg: cfg, gateway: gateway, pipeline: pipeline, logger: logger}
}

// Start joins the configured listen rooms and any invite-pending rooms,
// then registers the invite and leave listeners. Call once, before the
// gateway's event loop runs.
func (b *Bot) Start(ctx context.Context) {
	for _, ref := range b.cfg.ListenRooms {
		b.joinRoom(ctx, ref)
	}
	// Invites that arrived while the bot was offline get only the join
	// decision. The inviter policy applies to live invite events.
	for _, invite := range b.gateway.PendingInvites() {
		b.logger.Info("pending invite at startup", "room", invite.RoomID, "sender", invite.Sender)
		b.joinRoom(ctx, invite.RoomID)
	}
	b.gateway.OnInvite(b.handleInvite)
	b.gateway.OnLeave(b.handleLeave)
}

// handleInvite applies the inviter policy: open when no allowed
// inviters are configured, otherwise a case-insensitive membership
// check on the inviting sender.
func (b *Bot) handleInvite(ctx context.Context, invite matrix.InviteEvent) {
	b.logger.Info("invited to room", "room", invite.RoomID, "sender", invite.Sender)

	if len(b.cfg.AllowedInviters) == 0 {
		b.logger.Info("approved inviters turned off, attempting to join room", "room", invite.RoomID)
		b.joinRoom(ctx, invite.RoomID)
		return
	}
	for _, inviter := range b.cfg.AllowedInviters {
		if strings.EqualFold(inviter, invite.Sender) {
			b.logger.Info("sender is an approved inviter, attempting to join room",
				"room", invite.RoomID, "sender", invite.Sender)
			b.joinRoom(ctx, invite.RoomID)
			return
		}
	}
	b.logger.Info("sender is not an approved inviter, ignoring invite",
		"room", invite.RoomID, "sender", invite.Sender)
}

// joinRoom runs the room-membership-list policy for one symbolic
// reference and joins on approval. An unresolvable reference falls back
// to the raw symbolic string; the server may still know it.
func (b *Bot) joinRoom(ctx context.Context, ref string) {
	roomID := ref
	if room := b.gateway.FindRoom(ref); room != nil {
		roomID = room.ID
	}

	if len(b.cfg.Whitelist) > 0 {
		for _, entry := range b.cfg.Whitelist {
			if b.resolveID(entry) == roomID {
				b.logger.Info("room is whitelisted, joining it", "ref", ref)
				b.doJoin(ctx, ref)
				return
			}
		}
		b.logger.Info("room is not whitelisted, will not join it", "ref", ref)
		return
	}

	if len(b.cfg.Blacklist) > 0 {
		for _, entry := range b.cfg.Blacklist {
			if b.resolveID(entry) == roomID {
				b.logger.Info("room is blacklisted, will not join it", "ref", ref)
				return
			}
		}
		b.logger.Info("room is not blacklisted, joining it", "ref", ref)
		b.doJoin(ctx, ref)
		return
	}

	b.logger.Info("joining room", "ref", ref)
	b.doJoin(ctx, ref)
}

// resolveID resolves a list entry to a room ID, falling back to the
// raw entry for unlisted rooms.
func (b *Bot) resolveID(ref string) string {
	if room := b.gateway.FindRoom(ref); room != nil {
		return room.ID
	}
	return ref
}

// doJoin joins the room and registers the message listener so the
// dispatch pipeline starts receiving the room's messages. Join failure
// is logged, not retried.
func (b *Bot) doJoin(ctx context.Context, ref string) {
	room, err := b.gateway.JoinRoom(ctx, ref)
	if err != nil {
		b.logger.Warn("could not join room", "ref", ref, "error", err)
		return
	}
	b.gateway.OnRoomMessage(room.ID, b.handleRoomMessage)
	b.logger.Info("listening to room", "room", room.ID, "invite_only", room.InviteOnly())
}

// handleRoomMessage filters a timeline event and hands text messages to
// the pipeline. The bot's own messages and non-text events are ignored.
func (b *Bot) handleRoomMessage(ctx context.Context, room *matrix.Room, event matrix.Event) {
	if event.Sender == b.cfg.UserID {
		return
	}
	if event.Type != "m.room.message" {
		return
	}
	if event.MessageType() != "m.text" {
		return
	}
	message := strings.TrimSpace(event.Body())
	b.pipeline.Dispatch(ctx, room, event, message)
}

// handleLeave logs a departure. No state about the departed room is
// retained; the gateway already dropped its listeners.
func (b *Bot) handleLeave(ctx context.Context, leave matrix.LeaveEvent) {
	b.logger.Info("kicked or disinvited from room", "room", leave.RoomID, "actor", leave.Actor)
}
