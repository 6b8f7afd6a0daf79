// Package transport wraps the MQTT broker connection every AOR component
// uses to publish and subscribe to room topics (§2, §6.1).
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/agentopsroom/aor/common/retry"
	"github.com/agentopsroom/aor/common/trace"
	"github.com/agentopsroom/aor/internal/envelope"
)

// QoS levels used across the topic map (§6.1). Control-plane traffic
// (tasks, grants, revokes, reject) is delivered at-least-once; heartbeats
// are fire-and-forget.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

// Config holds MQTT client configuration.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// ConnectMaxAttempts bounds the initial Connect() retry loop. Once
	// connected, the underlying paho client's own auto-reconnect takes
	// over for subsequent drops.
	ConnectMaxAttempts int
}

// MessageHandler processes a decoded Envelope received on some topic.
type MessageHandler func(ctx context.Context, topic string, env *envelope.Envelope)

// Client wraps a paho MQTT client with AOR's envelope codec and
// reconnect/backoff policy.
type Client struct {
	mq         mqtt.Client
	config     Config
	msgHandler MessageHandler
	stopCh     chan struct{}
}

// New creates a new MQTT client. It does not connect; call Start for that.
func New(config Config) (*Client, error) {
	if config.BrokerURL == "" {
		return nil, fmt.Errorf("transport: broker URL must not be empty")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("transport: client ID must not be empty")
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 30 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.ConnectMaxAttempts <= 0 {
		config.ConnectMaxAttempts = 5
	}

	c := &Client{
		config: config,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetConnectTimeout(config.ConnectTimeout)
	// A persistent session keeps the broker-side subscriptions across an
	// auto-reconnect, so handlers keep receiving without resubscribing.
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("transport: connected", "broker", config.BrokerURL, "client_id", config.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("transport: connection lost; paho auto-reconnect engaged", "err", err)
	})

	c.mq = mqtt.NewClient(opts)
	return c, nil
}

// Start connects to the broker, retrying the initial handshake with
// exponential backoff. Without this, a broker that is merely slow to
// accept connections on process startup would abort the component
// entirely instead of waiting it out.
func (c *Client) Start(ctx context.Context) error {
	cfg := retry.Config{
		MaxAttempts:  c.config.ConnectMaxAttempts,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
	err := retry.Do(ctx, cfg, func() error {
		token := c.mq.Connect()
		token.Wait()
		return token.Error()
	})
	if err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}
	return nil
}

// Stop disconnects from the broker and stops delivering messages.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.mq.Disconnect(250)
}

// IsConnected reports whether the underlying client currently holds a live
// broker connection.
func (c *Client) IsConnected() bool {
	return c.mq.IsConnected()
}

// ClientID returns the configured MQTT client identifier.
func (c *Client) ClientID() string {
	return c.config.ClientID
}

// Publish marshals env and publishes it to topic at the given QoS.
func (c *Client) Publish(topic string, qos byte, env *envelope.Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	token := c.mq.Publish(topic, qos, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for every envelope received on topic
// (which may be an MQTT wildcard filter such as "agents/+/heartbeat").
// Envelopes that fail to parse are logged and dropped rather than handed
// to handler — a malformed message on the wire must never crash a
// subscriber.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.mq.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		env, err := envelope.Parse(msg.Payload())
		if err != nil {
			slog.Warn("transport: dropping malformed message", "topic", msg.Topic(), "err", err)
			return
		}
		handler(trace.WithTraceID(context.Background(), trace.GenerateID()), msg.Topic(), env)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", topic, err)
	}
	return nil
}

// RawHandler processes an undecoded message payload received on some
// topic. Used where malformed envelopes must not be silently dropped —
// the Gateway needs to see parse failures itself so it can emit a
// malformed_envelope reject rather than have transport discard them.
type RawHandler func(ctx context.Context, topic string, payload []byte)

// SubscribeRaw registers handler for every raw message payload received on
// topic, bypassing envelope.Parse entirely. Unlike Subscribe, a malformed
// payload still reaches handler — the caller is responsible for its own
// parse-failure handling.
func (c *Client) SubscribeRaw(topic string, qos byte, handler RawHandler) error {
	token := c.mq.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(trace.WithTraceID(context.Background(), trace.GenerateID()), msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: subscribe (raw) %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a prior Subscribe registration.
func (c *Client) Unsubscribe(topic string) error {
	token := c.mq.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: unsubscribe %s: %w", topic, err)
	}
	return nil
}

func marshalEnvelope(env *envelope.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("transport: refusing to publish invalid envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal envelope: %w", err)
	}
	return data, nil
}
