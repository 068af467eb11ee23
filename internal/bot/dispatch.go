package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aheby/roombot/internal/module"
	"github.com/aheby/roombot/matrix"
)

// Pipeline runs the registered modules against one message in fixed
// order. The first module to claim the message short-circuits the
// rest, except modules marked always-run, which see every message.
type Pipeline struct {
	modules []module.Module
	logger  *slog.Logger
}

// NewPipeline builds a pipeline with the given dispatch order.
func NewPipeline(modules []module.Module, logger *slog.Logger) *Pipeline {
	return &Pipeline{modules: modules, logger: logger}
}

// Dispatch runs the pipeline for one message. Calls are expected from a
// single goroutine; module runs are blocking and in-line, so a slow
// module delays subsequent events.
//
// A module returning module.ErrNoOperation has an inconsistent command
// table; that is a programming bug and panics. Other module errors are
// logged and do not stop the pipeline.
func (p *Pipeline) Dispatch(ctx context.Context, room *matrix.Room, event matrix.Event, message string) {
	handled := false
	for _, m := range p.modules {
		if handled && !m.AlwaysRun() {
			p.logger.Debug("skipping module, message already handled", "module", m.Name())
			continue
		}
		claimed, err := m.Run(ctx, room, event, message)
		if err != nil {
			if errors.Is(err, module.ErrNoOperation) {
				panic(fmt.Sprintf("module %s: %v", m.Name(), err))
			}
			p.logger.Error("module failed", "module", m.Name(), "room", room.ID, "error", err)
		}
		if claimed {
			handled = true
		}
	}
}
