// Package module defines the behavior-module contract and the concrete
// modules the bot ships: highlight group management, a liveness
// responder, and a media archiver. Modules are registered statically at
// startup; registration order is the dispatch order.
package module

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/internal/store"
	"github.com/aheby/roombot/matrix"
)

// Gateway is the slice of the chat gateway a module may use.
type Gateway interface {
	// SendText sends a text message to a room. Fire-and-forget:
	// failures are logged by the caller, never retried.
	SendText(ctx context.Context, roomID, text string) error
	// JoinedMembers returns the room's current members.
	JoinedMembers(ctx context.Context, roomID string) ([]matrix.Member, error)
	// FindUser resolves a user ID or display name to a room member,
	// or nil when the user is not in the room.
	FindUser(ctx context.Context, roomID, idOrDisplayName string) (*matrix.Member, error)
	// Presence returns a user's presence status.
	Presence(ctx context.Context, userID string) (string, error)
}

// Module is a unit of message-reactive behavior. Run reports whether
// the module claimed the message: true whenever one of its command
// branches executed, regardless of the branch's outcome.
type Module interface {
	Name() string
	// AlwaysRun marks modules that must see every message, not just
	// the first to claim it.
	AlwaysRun() bool
	Run(ctx context.Context, room *matrix.Room, event matrix.Event, message string) (bool, error)
}

// ErrNoOperation reports that a module's command set matched a message
// but no operation branch handled it. This is a bug in the module's
// command table, not a runtime condition; the dispatcher treats it as
// fatal.
var ErrNoOperation = errors.New("module: matched command set but no operation branch")

// Registry builds the module list in dispatch order. A module whose
// construction fails is logged as a warning and skipped; the remaining
// modules still run.
func Registry(cfg *conf.ModulesConfig, gateway Gateway, groups *store.Groups, logger *slog.Logger) []Module {
	type entry struct {
		name  string
		build func() (Module, error)
	}
	entries := []entry{
		{"highlight", func() (Module, error) { return NewHighlight(cfg.Highlight, gateway, groups, logger) }},
		{"alive", func() (Module, error) { return NewAlive(cfg.Alive, gateway), nil }},
		{"mediasave", func() (Module, error) { return NewMediaSave(cfg.MediaSave, gateway, logger) }},
	}

	var modules []Module
	for _, e := range entries {
		m, err := e.build()
		if err != nil {
			logger.Warn("could not load module", "module", e.name, "error", err)
			continue
		}
		modules = append(modules, m)
		logger.Info("loaded module", "module", e.name, "always_run", m.AlwaysRun())
	}
	return modules
}
