package eventbus

import (
	"context"

	"github.com/openfang/openfang/pkg/models"
)

// AgentSink adapts a Bus to the agent package's EventSink interface, so an
// AgenticLoop can publish directly onto the bus alongside comms events from
// the hand registry and browser manager.
type AgentSink struct {
	bus *Bus
}

// NewAgentSink wraps bus as an EventSink.
func NewAgentSink(bus *Bus) *AgentSink {
	return &AgentSink{bus: bus}
}

// Emit publishes e to the bus. Per Bus.Publish, this never blocks.
func (s *AgentSink) Emit(_ context.Context, e models.AgentEvent) {
	s.bus.Publish(e)
}
