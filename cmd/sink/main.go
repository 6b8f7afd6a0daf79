// Command sink runs the Sink: it archives every envelope observed on
// rooms/{room}/public to a JSONL file, bookmarking its progress so a
// restart resumes without re-scanning the archive (§4.5).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

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
	fmt.Printf("AOR Sink %s\n", version.Info())

	fs := pflag.NewFlagSet("sink", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: configuration error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(cfg.LogLevel, "text")

	dbPath := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile)) + ".offsets.db"
	offsets, err := sink.NewOffsetStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: %v\n", err)
		os.Exit(1)
	}
	defer offsets.Close()

	startOffset, resumed, err := sink.ResumeOffset(offsets, cfg.RoomID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: resume offset: %v\n", err)
		os.Exit(1)
	}

	archive, err := sink.OpenArchive(cfg.OutputFile, cfg.Append, startOffset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	if resumed {
		fmt.Printf("sink: resuming %s from byte offset %d\n", cfg.RoomID, startOffset)
	}

	client, err := transport.New(transport.Config{
		BrokerURL: fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort),
		ClientID:  "aor-sink-" + cfg.RoomID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sink: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sink: broker unreachable: %v\n", err)
		os.Exit(2)
	}
	defer client.Stop()

	s := sink.New(cfg.RoomID, archive, offsets)

	if err := client.Subscribe(topics.Public(cfg.RoomID), transport.QoSAtLeastOnce, func(ctx context.Context, topic string, env *envelope.Envelope) {
		if err := s.HandlePublic(env); err != nil {
			observability.WithTrace(ctx).Error("sink: archive write failed", "err", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "sink: subscribe public: %v\n", err)
		os.Exit(2)
	}

	<-ctx.Done()
	fmt.Println("sink: shutting down")
}
