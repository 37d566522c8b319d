// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package hermes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/hermeskit/skillhost/lib/clock"
	"github.com/hermeskit/skillhost/lib/secret"
)

// connectTimeout bounds one connection attempt to the broker.
const connectTimeout = 10 * time.Second

// subscribeTimeout bounds one subscribe acknowledgement.
const subscribeTimeout = 10 * time.Second

// publishTimeout bounds handing a QoS 0 publish to the network layer.
const publishTimeout = 5 * time.Second

// disconnectQuiesce is how many milliseconds Disconnect waits for
// in-flight work before dropping the connection.
const disconnectQuiesce = 250

// ErrNotConnected is returned by Publish while the broker connection
// is down. Callers log and drop the message; nothing is queued across
// an outage.
var ErrNotConnected = errors.New("broker not connected")

// Handler receives every inbound message in broker delivery order.
type Handler func(topic string, payload []byte)

// BridgeConfig configures the broker connection.
type BridgeConfig struct {
	// URL is the broker address, e.g. tcp://localhost:1883.
	URL string

	// ClientID is the MQTT client id base; a short random suffix is
	// appended so a restarted daemon never collides with its
	// predecessor's half-expired session.
	ClientID string

	// Username and Password authenticate to the broker. Empty
	// username means anonymous. The password buffer stays owned by
	// the caller.
	Username string
	Password *secret.Buffer

	// Keepalive is the MQTT keepalive interval. Zero means 30s.
	Keepalive time.Duration

	// Subscriptions are the topic filters subscribed on every
	// (re)connect. Empty means DefaultTopics().Subscriptions().
	Subscriptions []string

	// Clock drives the reconnect backoff. Nil means the real clock.
	Clock clock.Clock
}

// mqttConn is the slice of the paho client the bridge uses. The seam
// lets tests substitute a fake broker connection.
type mqttConn interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Bridge owns the daemon's single MQTT connection. Run keeps the
// connection alive for the daemon's lifetime: it connects with
// exponential backoff (1s doubling to 30s, reset on success,
// unbounded attempts), resubscribes the full topic set on every
// connect before reporting healthy, and reconnects whenever the
// connection drops. The bridge holds no routing logic; inbound
// messages go to the handler in delivery order.
type Bridge struct {
	url           string
	clientID      string
	username      string
	password      *secret.Buffer
	keepalive     time.Duration
	subscriptions []string
	clock         clock.Clock
	handler       Handler

	// newConn builds the underlying client; tests replace it.
	newConn func(*mqtt.ClientOptions) mqttConn

	mu      sync.Mutex
	conn    mqttConn
	healthy atomic.Bool

	logger *slog.Logger
}

// NewBridge creates a bridge. Run must be called to connect.
func NewBridge(cfg BridgeConfig, handler Handler, logger *slog.Logger) *Bridge {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	subscriptions := cfg.Subscriptions
	if len(subscriptions) == 0 {
		subscriptions = DefaultTopics().Subscriptions()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "skillhost"
	}

	return &Bridge{
		url:           cfg.URL,
		clientID:      clientID + "-" + uuid.NewString()[:8],
		username:      cfg.Username,
		password:      cfg.Password,
		keepalive:     keepalive,
		subscriptions: subscriptions,
		clock:         clk,
		handler:       handler,
		newConn: func(opts *mqtt.ClientOptions) mqttConn {
			return mqtt.NewClient(opts)
		},
		logger: logger,
	}
}

// Run connects and keeps the connection alive until ctx is cancelled.
// The broker is a required dependency, so connection failures never
// end the loop; they only delay it.
func (b *Bridge) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		lost, err := b.connect()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("broker connect failed, retrying",
				"url", b.url,
				"error", err,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-b.clock.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second

		select {
		case <-ctx.Done():
			b.disconnect()
			return nil
		case err := <-lost:
			b.healthy.Store(false)
			b.logger.Warn("broker connection lost, reconnecting", "error", err)
			b.dropConn()
		}
	}
}

// connect makes one connection attempt: dial, then subscribe the full
// topic set. The bridge reports healthy only after every subscription
// is acknowledged, so no message can slip past a half-subscribed
// connection. The returned channel delivers the connection-lost error
// for this connection.
func (b *Bridge) connect() (<-chan error, error) {
	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.url)
	opts.SetClientID(b.clientID)
	if b.username != "" {
		opts.SetUsername(b.username)
	}
	if b.password != nil {
		opts.SetPassword(b.password.String())
	}
	opts.SetKeepAlive(b.keepalive)
	opts.SetCleanSession(true)
	// The bridge runs its own reconnect loop; paho's would hide
	// resubscription behind the library.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	conn := b.newConn(opts)
	if err := waitToken(conn.Connect(), connectTimeout, "connect"); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", b.url, err)
	}

	for _, topic := range b.subscriptions {
		if err := waitToken(conn.Subscribe(topic, 0, b.onMessage), subscribeTimeout, "subscribe"); err != nil {
			conn.Disconnect(0)
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.healthy.Store(true)

	b.logger.Info("broker connected",
		"url", b.url,
		"client_id", b.clientID,
		"subscriptions", len(b.subscriptions),
	)
	return lost, nil
}

// onMessage adapts paho's callback to the bridge handler.
func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.handler(msg.Topic(), msg.Payload())
}

// Publish sends one QoS 0 message. Returns ErrNotConnected while the
// connection is down; messages are never queued across an outage.
func (b *Bridge) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil || !b.healthy.Load() {
		return ErrNotConnected
	}
	if err := waitToken(conn.Publish(topic, 0, false, payload), publishTimeout, "publish"); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Healthy reports whether the bridge currently holds a fully
// subscribed connection.
func (b *Bridge) Healthy() bool {
	return b.healthy.Load()
}

// disconnect tears the connection down cleanly.
func (b *Bridge) disconnect() {
	b.healthy.Store(false)
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Disconnect(disconnectQuiesce)
	}
}

// dropConn forgets a connection that is already dead.
func (b *Bridge) dropConn() {
	b.mu.Lock()
	b.conn = nil
	b.mu.Unlock()
}

// waitToken waits for a paho operation to complete within timeout.
func waitToken(token mqtt.Token, timeout time.Duration, op string) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s: timed out after %s", op, timeout)
	}
	return token.Error()
}
