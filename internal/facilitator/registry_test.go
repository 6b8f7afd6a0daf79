package facilitator_test

import (
	"testing"
	"time"

	"github.com/agentopsroom/aor/internal/facilitator"
)

func TestRegistry_UpsertRejectsFacilitatorID(t *testing.T) {
	reg := facilitator.NewRegistry(30 * time.Second)
	reg.Upsert("facilitator", "the room's own coordinator", time.Now())

	if _, ok := reg.Get("facilitator"); ok {
		t.Fatal("registry accepted a heartbeat from \"facilitator\" as a delegable agent")
	}
	for _, a := range reg.Active() {
		if a.ID == "facilitator" {
			t.Fatalf("Active() lists the facilitator itself: %+v", a)
		}
	}
}

func TestRegistry_UpsertAcceptsOtherAgents(t *testing.T) {
	reg := facilitator.NewRegistry(30 * time.Second)
	reg.Upsert("researcher", "does research", time.Now())

	got, ok := reg.Get("researcher")
	if !ok {
		t.Fatal("expected researcher to be registered")
	}
	if got.Description != "does research" {
		t.Errorf("Description = %q, want %q", got.Description, "does research")
	}
}
