// client.go: MQTT client that publishes key events.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
	"github.com/dtmfin/dtmfin/internal/observability/metrics"
	"github.com/dtmfin/dtmfin/internal/privacy"
)

// Client publishes events to a broker. Publish never blocks on the network.
type Client struct {
	config         Config
	clientID       string
	internalClient mqtt.Client
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
	mu             sync.Mutex
	closed         bool

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics reports connection and publish metrics to m.
func WithMetrics(m *metrics.MQTTMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient validates cfg and creates a disconnected client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	def := DefaultConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = def.DisconnectTimeout
	}
	if _, err := brokerHost(cfg.Broker); err != nil {
		return nil, err
	}

	c := &Client{
		config:    cfg,
		clientID:  cfg.ClientID + "-" + uuid.NewString()[:8],
		log:       logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
		newClient: mqtt.NewClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// brokerHost parses a broker URL and returns its host name.
func brokerHost(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err == nil && u.Hostname() == "" {
		err = errors.NewStd("missing host")
	}
	if err == nil {
		switch u.Scheme {
		case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		default:
			err = fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	if err != nil {
		safe := privacy.SanitizeURL(broker)
		return "", errors.New(fmt.Errorf("invalid broker URL %q: %w", safe, privacy.WrapError(err))).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", safe).
			Build()
	}
	return u.Hostname(), nil
}

// ClientID returns the client identifier used on the wire.
func (c *Client) ClientID() string { return c.clientID }

// Broker returns the broker URL without credentials, for logging.
func (c *Client) Broker() string { return privacy.SanitizeURL(c.config.Broker) }

// Topic returns the topic events are published to.
func (c *Client) Topic() string { return c.config.Topic }

// Connect resolves the broker and connects. When the broker does not answer
// within the connect timeout an error is returned, but the client keeps
// retrying in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	host, err := brokerHost(c.config.Broker)
	if err != nil {
		return err
	}

	// Check if the host is an IP address
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			c.incrementErrors()
			return c.connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err))
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.clientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.connectionError(errors.NewStd("client closed"))
	}
	c.internalClient = c.newClient(opts)
	internal := c.internalClient
	c.mu.Unlock()

	token := internal.Connect()
	timer := time.NewTimer(c.config.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return c.connectionError(ctx.Err())
	case <-timer.C:
		return c.connectionError(errors.NewStd("connection timeout, retrying in background"))
	}
	if err := token.Error(); err != nil {
		c.incrementErrors()
		return c.connectionError(fmt.Errorf("connection error: %w", privacy.WrapError(err)))
	}

	c.updateConnectionStatus(true)
	return nil
}

func (c *Client) connectionError(err error) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", c.Broker()).
		Build()
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.internalClient != nil && c.internalClient.IsConnected()
}

// Publish mirrors ev at QoS 0. Events are dropped and counted while the
// client is disconnected.
func (c *Client) Publish(ev detection.Event) {
	payload, err := json.Marshal(NewEventMessage(ev, time.Now()))
	if err != nil {
		c.incrementErrors()
		c.log.Warn("event payload not encoded", logger.Error(err))
		return
	}

	c.mu.Lock()
	internal := c.internalClient
	connected := !c.closed && internal != nil && internal.IsConnected()
	c.mu.Unlock()
	if !connected {
		c.incrementErrors()
		c.log.Debug("not connected, event not mirrored", logger.String("key", ev.Symbol.String()))
		return
	}

	var timer *metrics.PublishTimer
	if c.metrics != nil {
		timer = c.metrics.StartPublishTimer()
	}
	token := internal.Publish(c.config.Topic, 0, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.incrementErrors()
			c.log.Debug("publish failed", logger.Error(err), logger.String("topic", c.config.Topic))
			return
		}
	default:
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObserveMessageSize(float64(len(payload)))
		timer.ObserveDuration()
	}
}

// Close disconnects from the broker and stops background reconnects. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.internalClient != nil {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
	c.updateConnectionStatus(false)
	return nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.Broker()))
	c.updateConnectionStatus(true)
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.String("broker", c.Broker()), logger.Error(privacy.WrapError(err)))
	c.updateConnectionStatus(false)
	c.incrementErrors()
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	c.log.Debug("reconnecting to MQTT broker", logger.String("broker", c.Broker()))
	if c.metrics != nil {
		c.metrics.IncrementReconnectAttempts()
	}
}

func (c *Client) updateConnectionStatus(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *Client) incrementErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}
