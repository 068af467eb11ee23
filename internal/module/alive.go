package module

import (
	"context"

	"github.com/aheby/roombot/internal/command"
	"github.com/aheby/roombot/internal/conf"
	"github.com/aheby/roombot/matrix"
)

var aliveCommands = []string{"!alive", "!running"}

// Alive answers liveness checks.
type Alive struct {
	gateway   Gateway
	alwaysRun bool
}

// NewAlive builds the liveness responder.
func NewAlive(cfg conf.AliveConfig, gateway Gateway) *Alive {
	return &Alive{gateway: gateway, alwaysRun: cfg.AlwaysRun}
}

func (a *Alive) Name() string { return "alive" }

func (a *Alive) AlwaysRun() bool { return a.alwaysRun }

func (a *Alive) Run(ctx context.Context, room *matrix.Room, event matrix.Event, message string) (bool, error) {
	if !command.Matches(aliveCommands, message) {
		return false, nil
	}
	return true, a.gateway.SendText(ctx, room.ID, "Yes.")
}
