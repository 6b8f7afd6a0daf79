// Command facilitator runs the Facilitator: it watches public chat and
// agent heartbeats, decides whether a user utterance can be answered
// directly or needs delegation, and drives the resulting task to
// completion (§4.2).
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
	"github.com/agentopsroom/aor/internal/facilitator"
	"github.com/agentopsroom/aor/internal/observability"
	"github.com/agentopsroom/aor/internal/oracle"
	"github.com/agentopsroom/aor/internal/topics"
	"github.com/agentopsroom/aor/internal/transport"
)

const heartbeatInterval = 5 * time.Second

func main() {
	fmt.Printf("AOR Facilitator %s\n", version.Info())

	fs := pflag.NewFlagSet("facilitator", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLMAPIKey == "" {
		fmt.Fprintln(os.Stderr, "facilitator: --llm-api-key (or AOR_LLM_API_KEY) is required")
		os.Exit(1)
	}
	observability.Setup(cfg.LogLevel, "text")

	provider := oracle.NewOpenAI(oracle.OpenAIConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: 30 * time.Second,
	})

	client, err := transport.New(transport.Config{
		BrokerURL: fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort),
		ClientID:  "aor-facilitator-" + cfg.RoomID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	reg := facilitator.NewRegistry(0)
	tasks := facilitator.NewTaskStore()
	tail := facilitator.NewTailBuffer()
	guard := facilitator.NewIntentGuard(provider, reg, cfg.LLMModel)

	fac := facilitator.New(cfg.RoomID, cfg.LLMModel, guard, tasks, reg, tail,
		func(env *envelope.Envelope) error {
			return client.Publish(topics.Public(cfg.RoomID), transport.QoSAtLeastOnce, env)
		},
		func(agentID string, env *envelope.Envelope) error {
			return client.Publish(topics.Inbox(cfg.RoomID, agentID), transport.QoSAtLeastOnce, env)
		},
		func(env *envelope.Envelope) error {
			return client.Publish(topics.Control(cfg.RoomID), transport.QoSAtLeastOnce, env)
		},
	)

	if err := client.Subscribe(topics.Public(cfg.RoomID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		if err := fac.HandlePublic(ctx, env); err != nil {
			observability.WithTrace(ctx).Warn("facilitator: handle public failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: subscribe public: %v\n", err)
		os.Exit(2)
	}

	if err := client.Subscribe(topics.Summary(cfg.RoomID), transport.QoSAtMostOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		if err := fac.HandleSummary(env); err != nil {
			observability.WithTrace(ctx).Warn("facilitator: handle summary failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: subscribe summary: %v\n", err)
		os.Exit(2)
	}

	if err := client.Subscribe(topics.HeartbeatWildcard(cfg.RoomID), transport.QoSAtMostOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		if err := fac.HandleHeartbeat(env); err != nil {
			observability.WithTrace(ctx).Warn("facilitator: handle heartbeat failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "facilitator: subscribe heartbeats: %v\n", err)
		os.Exit(2)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	selfTopic := topics.Heartbeat(cfg.RoomID, "facilitator")
	for {
		select {
		case <-ctx.Done():
			fmt.Println("facilitator: shutting down")
			return
		case <-ticker.C:
			hb, err := fac.Heartbeat("facilitator")
			if err != nil {
				observability.WithTrace(ctx).Warn("facilitator: build heartbeat failed", "err", err)
				continue
			}
			if err := client.Publish(selfTopic, transport.QoSAtMostOnce, hb); err != nil {
				observability.WithTrace(ctx).Warn("facilitator: publish heartbeat failed", "err", err)
			}
			for _, dropped := range fac.SweepRegistry() {
				observability.WithTrace(ctx).Info("facilitator: dropped stale agent", "agent_id", dropped)
			}
		}
	}
}
