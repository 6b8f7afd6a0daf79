// Command replay republishes a filtered range of a Sink archive back onto
// rooms/{room}/public, byte-identical to the archived envelopes (§4.5).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/agentopsroom/aor/common/version"
	"github.com/agentopsroom/aor/internal/config"
	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/observability"
	"github.com/agentopsroom/aor/internal/sink"
	"github.com/agentopsroom/aor/internal/topics"
	"github.com/agentopsroom/aor/internal/transport"
)

func main() {
	fmt.Printf("AOR Replay %s\n", version.Info())

	fs := pflag.NewFlagSet("replay", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: configuration error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(cfg.LogLevel, "text")

	client, err := transport.New(transport.Config{
		BrokerURL: fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort),
		ClientID:  "aor-replay-" + cfg.RoomID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	if err := client.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "replay: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	filter := sink.ReplayFilter{RoomID: cfg.RoomID, FromTS: cfg.FromTS, ToTS: cfg.ToTS}

	count, err := sink.Replay(cfg.OutputFile, filter, func(env *envelope.Envelope) error {
		return client.Publish(topics.Public(env.RoomID), transport.QoSAtLeastOnce, env)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("replay: republished %d envelope(s) for room %q\n", count, cfg.RoomID)
}
