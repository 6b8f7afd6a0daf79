// Command gateway runs the Moderation Gateway: the sole writer of
// rooms/{room}/public for agent-originated content (§4.1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/agentopsroom/aor/common/version"
	"github.com/agentopsroom/aor/internal/config"
	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/gateway"
	"github.com/agentopsroom/aor/internal/observability"
	"github.com/agentopsroom/aor/internal/schema"
	"github.com/agentopsroom/aor/internal/topics"
	"github.com/agentopsroom/aor/internal/transport"
)

func main() {
	fmt.Printf("AOR Moderation Gateway %s\n", version.Info())

	fs := pflag.NewFlagSet("gateway", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: configuration error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(cfg.LogLevel, "text")

	schemas, err := schema.NewRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: failed to compile disclosure schemas: %v\n", err)
		os.Exit(1)
	}

	client, err := transport.New(transport.Config{
		BrokerURL: fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort),
		ClientID:  "aor-gateway-" + cfg.RoomID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	gw := gateway.New(schemas,
		func(env *envelope.Envelope) error {
			return client.Publish(topics.Public(cfg.RoomID), transport.QoSAtLeastOnce, env)
		},
		func(roomID string, payload envelope.RejectPayload) error {
			env, err := envelope.New(envelope.TypeReject, roomID, envelope.From{Kind: envelope.KindSystem, ID: "gateway"}, time.Now(), payload)
			if err != nil {
				return err
			}
			return client.Publish(topics.Control(roomID), transport.QoSAtLeastOnce, env)
		},
		gateway.WithDedupWindow(cfg.DedupWindow),
	)

	if err := client.Subscribe(topics.Control(cfg.RoomID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		switch env.Type {
		case envelope.TypeMicGrant:
			if err := gw.ApplyMicGrant(env); err != nil {
				observability.WithTrace(ctx).Warn("gateway: apply mic_grant failed", "err", err)
			}
		case envelope.TypeMicRevoke:
			if err := gw.ApplyMicRevoke(env); err != nil {
				observability.WithTrace(ctx).Warn("gateway: apply mic_revoke failed", "err", err)
			}
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: subscribe control: %v\n", err)
		os.Exit(2)
	}

	if err := client.SubscribeRaw(topics.PublicCandidates(cfg.RoomID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, payload []byte) {
		if _, err := gw.ProcessRawCandidate(cfg.RoomID, payload); err != nil {
			observability.WithTrace(ctx).Error("gateway: process candidate failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: subscribe public_candidates: %v\n", err)
		os.Exit(2)
	}

	<-ctx.Done()
	fmt.Println("gateway: shutting down")
}
