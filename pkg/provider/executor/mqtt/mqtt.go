// Package mqtt implements [executor.Executor] by publishing each action to an
// MQTT broker, where the robot's motion controller picks it up.
//
// Every action is published once to
//
//	<prefix>/action/<ACTION>
//
// with a JSON payload {"id": "<uuid>", "action": "<ACTION>", "ts": <unix ms>}.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/MrWong99/mira/pkg/provider/executor"
)

const (
	// DefaultTopicPrefix roots all action topics.
	DefaultTopicPrefix = "mira"

	// DefaultPublishTimeout bounds the wait for the broker's acknowledgement.
	DefaultPublishTimeout = 2 * time.Second

	defaultQoS = 1
)

// Config configures the broker connection.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	PublishTimeout time.Duration
	// Actions, if non-empty, restricts the executor to the listed actions.
	Actions []string
}

// Message is the payload published for an action.
type Message struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	TS     int64  `json:"ts"`
}

// publisher is the subset of [paho.Client] used by the executor.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var _ executor.Executor = (*Executor)(nil)

// Executor publishes actions.
type Executor struct {
	client  publisher
	prefix  string
	timeout time.Duration
	allowed map[string]struct{}
	now     func() time.Time
	newID   func() string
	close   func()
}

// TopicAction returns the topic an action is published to.
func TopicAction(prefix, action string) string {
	return fmt.Sprintf("%s/action/%s", prefix, action)
}

// New connects to the broker and returns an [Executor].
func New(cfg Config) (*Executor, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt executor: broker URL must not be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mira-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Error("mqtt executor: connection lost", "err", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout(cfg)) {
		return nil, fmt.Errorf("mqtt executor: connect to %s: timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt executor: connect to %s: %w", cfg.BrokerURL, err)
	}

	e := newExecutor(client, cfg)
	e.close = func() { client.Disconnect(250) }
	return e, nil
}

func newExecutor(client publisher, cfg Config) *Executor {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	var allowed map[string]struct{}
	if len(cfg.Actions) > 0 {
		allowed = make(map[string]struct{}, len(cfg.Actions))
		for _, a := range cfg.Actions {
			allowed[a] = struct{}{}
		}
	}
	return &Executor{
		client:  client,
		prefix:  prefix,
		timeout: publishTimeout(cfg),
		allowed: allowed,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func publishTimeout(cfg Config) time.Duration {
	if cfg.PublishTimeout > 0 {
		return cfg.PublishTimeout
	}
	return DefaultPublishTimeout
}

// Execute implements [executor.Executor].
func (e *Executor) Execute(ctx context.Context, action string) error {
	if action == "" {
		return fmt.Errorf("mqtt executor: empty action: %w", executor.ErrUnavailable)
	}
	if e.allowed != nil {
		if _, ok := e.allowed[action]; !ok {
			return fmt.Errorf("mqtt executor: %s not implemented: %w", action, executor.ErrUnavailable)
		}
	}

	msg := Message{ID: e.newID(), Action: action, TS: e.now().UnixMilli()}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqtt executor: marshal: %w", err)
	}

	topic := TopicAction(e.prefix, action)
	token := e.client.Publish(topic, defaultQoS, false, body)

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt executor: publish %s: timed out after %s", topic, e.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt executor: publish %s: %w", topic, err)
	}
	slog.Info("mqtt executor: action published", "action", action, "topic", topic, "id", msg.ID)
	return nil
}

// Close disconnects from the broker.
func (e *Executor) Close() error {
	if e.close != nil {
		e.close()
	}
	return nil
}
