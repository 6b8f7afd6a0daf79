// Command summarizer runs the Incremental Summarizer: it watches public
// chat and, after every N observed task completions, condenses the prior
// summary plus the unseen tail into a fresh rolling summary (§4.4).
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
	"github.com/agentopsroom/aor/internal/observability"
	"github.com/agentopsroom/aor/internal/oracle"
	"github.com/agentopsroom/aor/internal/summarizer"
	"github.com/agentopsroom/aor/internal/topics"
	"github.com/agentopsroom/aor/internal/transport"
)

func main() {
	fmt.Printf("AOR Incremental Summarizer %s\n", version.Info())

	fs := pflag.NewFlagSet("summarizer", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "summarizer: configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLMAPIKey == "" {
		fmt.Fprintln(os.Stderr, "summarizer: --llm-api-key (or AOR_LLM_API_KEY) is required")
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
		ClientID:  "aor-summarizer-" + cfg.RoomID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "summarizer: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "summarizer: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	sum := summarizer.New(cfg.RoomID, cfg.LLMModel, provider, func(env *envelope.Envelope) error {
		return client.Publish(topics.Summary(cfg.RoomID), transport.QoSAtMostOnce, env)
	}, cfg.SummaryInterval, summarizer.DefaultMaxPromptTokens)

	if err := client.Subscribe(topics.Public(cfg.RoomID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		if err := sum.ObservePublic(ctx, env); err != nil {
			observability.WithTrace(ctx).Warn("summarizer: observe public failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "summarizer: subscribe public: %v\n", err)
		os.Exit(2)
	}

	<-ctx.Done()
	fmt.Println("summarizer: shutting down")
}
