package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/openfang/openfang/pkg/models"
)

func TestAgentSink_EmitPublishesToBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New()
	sub := b.Subscribe(ctx)
	defer sub.Close()

	sink := NewAgentSink(b)
	sink.Emit(ctx, models.AgentEvent{Type: models.AgentEventRunStarted, RunID: "run-1"})

	select {
	case env := <-sub.C:
		if env.Agent == nil || env.Agent.RunID != "run-1" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
