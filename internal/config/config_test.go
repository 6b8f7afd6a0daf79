package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentopsroom/aor/internal/config"
	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := config.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := config.Load(fs, f)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.RoomID != "default" || cfg.MQTTHost != "localhost" || cfg.MQTTPort != 1883 {
		t.Errorf("Load: got %+v", cfg)
	}
}

func TestLoad_FilePrecedesEnvPrecedesFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("room_id: from-file\nmqtt_host: file-host\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("AOR_MQTT_HOST", "env-host")
	t.Setenv("AOR_ROOM_ID", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := config.RegisterFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--mqtt-port", "9999"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := config.Load(fs, f)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}

	if cfg.RoomID != "from-file" {
		t.Errorf("RoomID = %q, want file value to survive (env was empty)", cfg.RoomID)
	}
	if cfg.MQTTHost != "env-host" {
		t.Errorf("MQTTHost = %q, want env to override file", cfg.MQTTHost)
	}
	if cfg.MQTTPort != 9999 {
		t.Errorf("MQTTPort = %d, want explicit flag to override everything", cfg.MQTTPort)
	}
}

func TestLoad_UnsetFlagDoesNotClobberEnv(t *testing.T) {
	t.Setenv("AOR_LOG_LEVEL", "debug")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := config.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg, err := config.Load(fs, f)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want env value preserved since --log-level was never passed", cfg.LogLevel)
	}
}

func TestLoad_RejectsEmptyRoomID(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := config.RegisterFlags(fs)
	if err := fs.Parse([]string{"--room-id", ""}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// An explicitly empty --room-id is still "changed", so it should
	// surface as a validation error rather than silently falling back.
	if _, err := config.Load(fs, f); err == nil {
		t.Error("Load: expected error for empty room-id, got nil")
	}
}
