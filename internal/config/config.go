// Package config layers AOR's runtime configuration from built-in
// defaults, an optional YAML file, environment variables, and CLI flags,
// in that increasing order of precedence (§6.5).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/agentopsroom/aor/common/environment"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every setting any AOR component may need; each cmd/*
// entrypoint reads only the fields relevant to it.
type Config struct {
	RoomID   string `yaml:"room_id"`
	MQTTHost string `yaml:"mqtt_host"`
	MQTTPort int    `yaml:"mqtt_port"`
	LogLevel string `yaml:"log_level"`

	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMModel   string `yaml:"llm_model"`

	OutputFile string `yaml:"output_file"`
	Append     bool   `yaml:"append"`

	SummaryInterval int `yaml:"summary_interval"`

	AgentID    string `yaml:"agent_id"`
	HealthAddr string `yaml:"health_addr"`

	DedupWindow time.Duration `yaml:"dedup_window"`

	FromTS int64 `yaml:"from_ts"`
	ToTS   int64 `yaml:"to_ts"`
}

// Defaults returns AOR's built-in configuration defaults, the lowest
// precedence tier.
func Defaults() Config {
	return Config{
		RoomID:          "default",
		MQTTHost:        "localhost",
		MQTTPort:        1883,
		LogLevel:        "info",
		LLMBaseURL:      "https://api.openai.com/v1",
		LLMModel:        "gpt-4o-mini",
		OutputFile:      "aor-archive.jsonl",
		Append:          true,
		SummaryInterval: 3,
		DedupWindow:     5 * time.Minute,
	}
}

// flags is the pflag-bound staging area: flags parse into here, never
// directly into Config, so Load can tell "the user passed --room-id" apart
// from "the field happens to equal the zero-value default."
type flags struct {
	configPath      string
	roomID          string
	mqttHost        string
	mqttPort        int
	logLevel        string
	llmAPIKey       string
	llmBaseURL      string
	llmModel        string
	outputFile      string
	append          bool
	summaryInterval int
	agentID         string
	healthAddr      string
	dedupWindow     time.Duration
	fromTS          int64
	toTS            int64
}

// RegisterFlags declares AOR's shared and per-component `--long-flag`
// surface (§6.5) on fs. Components that don't use a given flag may still
// register it harmlessly. Call fs.Parse(os.Args[1:]) yourself, then pass
// fs to Load.
func RegisterFlags(fs *pflag.FlagSet) *flags {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.roomID, "room-id", "", "room identifier")
	fs.StringVar(&f.mqttHost, "mqtt-host", "", "MQTT broker host")
	fs.IntVar(&f.mqttPort, "mqtt-port", 0, "MQTT broker port")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	fs.StringVar(&f.llmAPIKey, "llm-api-key", "", "LLM provider API key")
	fs.StringVar(&f.llmBaseURL, "llm-base-url", "", "LLM provider base URL")
	fs.StringVar(&f.llmModel, "llm-model", "", "LLM model name")

	fs.StringVar(&f.outputFile, "output-file", "", "sink: archive file path")
	fs.BoolVar(&f.append, "append", false, "sink: append to an existing archive file")

	fs.IntVar(&f.summaryInterval, "summary-interval", 0, "summarizer: completions between condensation rounds")

	fs.StringVar(&f.agentID, "agent-id", "", "agent: this agent's identifier")
	fs.StringVar(&f.healthAddr, "health-addr", "", "agent: address for the local health HTTP surface (empty disables it)")

	fs.DurationVar(&f.dedupWindow, "dedup-window", 0, "gateway: redelivery dedup window")

	fs.Int64Var(&f.fromTS, "from-ts", 0, "replay: earliest unix timestamp to republish (inclusive)")
	fs.Int64Var(&f.toTS, "to-ts", 0, "replay: latest unix timestamp to republish (inclusive, 0 means unbounded)")
	return f
}

// Load builds the effective Config by applying, in increasing precedence:
// built-in defaults, a YAML file (named by --config, if any), AOR_*
// environment variables, then only the flags the caller actually passed
// on the command line (§6.5: flags > env > file > defaults). fs must
// already have been Parse()'d.
func Load(fs *pflag.FlagSet, f *flags) (Config, error) {
	cfg := Defaults()

	if f.configPath != "" {
		if err := applyFile(&cfg, f.configPath); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	applyExplicitFlags(&cfg, fs, f)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.RoomID = environment.StringOr("AOR_ROOM_ID", cfg.RoomID)
	cfg.MQTTHost = environment.StringOr("AOR_MQTT_HOST", cfg.MQTTHost)
	cfg.MQTTPort = environment.IntOr("AOR_MQTT_PORT", cfg.MQTTPort)
	cfg.LogLevel = environment.StringOr("AOR_LOG_LEVEL", cfg.LogLevel)

	cfg.LLMAPIKey = environment.StringOr("AOR_LLM_API_KEY", cfg.LLMAPIKey)
	cfg.LLMBaseURL = environment.StringOr("AOR_LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = environment.StringOr("AOR_LLM_MODEL", cfg.LLMModel)

	cfg.OutputFile = environment.StringOr("AOR_OUTPUT_FILE", cfg.OutputFile)
	cfg.Append = environment.BoolOr("AOR_APPEND", cfg.Append)

	cfg.SummaryInterval = environment.IntOr("AOR_SUMMARY_INTERVAL", cfg.SummaryInterval)

	cfg.AgentID = environment.StringOr("AOR_AGENT_ID", cfg.AgentID)

	cfg.DedupWindow = environment.DurationOr("AOR_DEDUP_WINDOW", cfg.DedupWindow)
}

// applyExplicitFlags overlays only the flags fs.Changed reports as
// user-set, so an unset --flag (holding its zero-value staging default)
// never clobbers a value already layered in from env or file.
func applyExplicitFlags(cfg *Config, fs *pflag.FlagSet, f *flags) {
	if fs.Changed("room-id") {
		cfg.RoomID = f.roomID
	}
	if fs.Changed("mqtt-host") {
		cfg.MQTTHost = f.mqttHost
	}
	if fs.Changed("mqtt-port") {
		cfg.MQTTPort = f.mqttPort
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("llm-api-key") {
		cfg.LLMAPIKey = f.llmAPIKey
	}
	if fs.Changed("llm-base-url") {
		cfg.LLMBaseURL = f.llmBaseURL
	}
	if fs.Changed("llm-model") {
		cfg.LLMModel = f.llmModel
	}
	if fs.Changed("output-file") {
		cfg.OutputFile = f.outputFile
	}
	if fs.Changed("append") {
		cfg.Append = f.append
	}
	if fs.Changed("summary-interval") {
		cfg.SummaryInterval = f.summaryInterval
	}
	if fs.Changed("agent-id") {
		cfg.AgentID = f.agentID
	}
	if fs.Changed("health-addr") {
		cfg.HealthAddr = f.healthAddr
	}
	if fs.Changed("dedup-window") {
		cfg.DedupWindow = f.dedupWindow
	}
	if fs.Changed("from-ts") {
		cfg.FromTS = f.fromTS
	}
	if fs.Changed("to-ts") {
		cfg.ToTS = f.toTS
	}
}

// Validate checks the fields every component depends on regardless of
// which cmd/* binary is running.
func Validate(cfg Config) error {
	if cfg.RoomID == "" {
		return fmt.Errorf("config: room-id must not be empty")
	}
	if cfg.MQTTHost == "" {
		return fmt.Errorf("config: mqtt-host must not be empty")
	}
	if cfg.MQTTPort <= 0 {
		return fmt.Errorf("config: mqtt-port must be positive")
	}
	return nil
}
