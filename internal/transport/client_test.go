package transport_test

import (
	"testing"

	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/transport"
)

func TestNew_RequiresBrokerURL(t *testing.T) {
	_, err := transport.New(transport.Config{ClientID: "c1"})
	if err == nil {
		t.Error("New: expected error for empty broker URL, got nil")
	}
}

func TestNew_RequiresClientID(t *testing.T) {
	_, err := transport.New(transport.Config{BrokerURL: "tcp://localhost:1883"})
	if err == nil {
		t.Error("New: expected error for empty client ID, got nil")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	c, err := transport.New(transport.Config{BrokerURL: "tcp://localhost:1883", ClientID: "c1"})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if c.ClientID() != "c1" {
		t.Errorf("ClientID: got %q, want %q", c.ClientID(), "c1")
	}
}

func TestPublish_RejectsInvalidEnvelopeBeforeNetworkCall(t *testing.T) {
	c, err := transport.New(transport.Config{BrokerURL: "tcp://localhost:1883", ClientID: "c2"})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	bad := &envelope.Envelope{} // missing id/type/room_id/from/ts
	if err := c.Publish("rooms/r1/public", transport.QoSAtLeastOnce, bad); err == nil {
		t.Error("Publish: expected error for invalid envelope, got nil")
	}
}

func TestIsConnected_FalseBeforeStart(t *testing.T) {
	c, err := transport.New(transport.Config{BrokerURL: "tcp://localhost:1883", ClientID: "c3"})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected: expected false before Start, got true")
	}
}
