// Command agent runs one Specialist Agent: a stateful worker that
// executes tasks dispatched by the Facilitator and discloses progress and
// results under its mic grant (§4.3).
//
// Task execution itself is opaque to the room protocol. This binary's
// ExecuteFunc asks the configured LLM to carry out the task's goal
// directly; operators who need tool use, retrieval, or other domain work
// should swap in their own ExecuteFunc and keep the rest of this wiring.
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
	"github.com/agentopsroom/aor/internal/agent"
	"github.com/agentopsroom/aor/internal/config"
	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/observability"
	"github.com/agentopsroom/aor/internal/oracle"
	"github.com/agentopsroom/aor/internal/topics"
	"github.com/agentopsroom/aor/internal/transport"
)

const heartbeatInterval = 5 * time.Second

func main() {
	fmt.Printf("AOR Specialist Agent %s\n", version.Info())

	fs := pflag.NewFlagSet("agent", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.AgentID == "" {
		fmt.Fprintln(os.Stderr, "agent: --agent-id (or AOR_AGENT_ID) is required")
		os.Exit(1)
	}
	if cfg.LLMAPIKey == "" {
		fmt.Fprintln(os.Stderr, "agent: --llm-api-key (or AOR_LLM_API_KEY) is required")
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
		ClientID:  "aor-agent-" + cfg.AgentID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "agent: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	execute := func(ctx context.Context, task envelope.TaskPayload, disclose func(string, interface{}) error) (string, bool) {
		disclose("progress", map[string]string{"text": "working on: " + task.Goal})

		resp, err := provider.Complete(ctx, oracle.CompletionRequest{
			Model: cfg.LLMModel,
			Messages: []oracle.Message{
				{Role: oracle.RoleSystem, Content: "You are a specialist agent completing a delegated task. Respond with the finished work only."},
				{Role: oracle.RoleUser, Content: task.Goal},
			},
		})
		if err != nil {
			return fmt.Sprintf("task failed: %v", err), true
		}
		return resp.Message.Content, false
	}

	a := agent.New(cfg.AgentID, cfg.RoomID, 0, execute, func(env *envelope.Envelope) error {
		return client.Publish(topics.PublicCandidates(cfg.RoomID), transport.QoSAtLeastOnce, env)
	})

	if err := client.Subscribe(topics.Inbox(cfg.RoomID, cfg.AgentID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		task, err := env.AsTask()
		if err != nil {
			observability.WithTrace(ctx).Warn("agent: received malformed task", "err", err)
			return
		}
		a.Enqueue(*task)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "agent: subscribe inbox: %v\n", err)
		os.Exit(2)
	}

	go a.RunLoop(ctx)

	if cfg.HealthAddr != "" {
		health := agent.NewHealthServer(cfg.HealthAddr, a)
		if err := health.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "agent: health server: %v\n", err)
			os.Exit(1)
		}
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	selfTopic := topics.Heartbeat(cfg.RoomID, cfg.AgentID)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("agent: shutting down")
			return
		case <-ticker.C:
			hb, err := a.Heartbeat("specialist agent")
			if err != nil {
				observability.WithTrace(ctx).Warn("agent: build heartbeat failed", "err", err)
				continue
			}
			if err := client.Publish(selfTopic, transport.QoSAtMostOnce, hb); err != nil {
				observability.WithTrace(ctx).Warn("agent: publish heartbeat failed", "err", err)
			}
		}
	}
}
