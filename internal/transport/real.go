package transport

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/dmatscheko/homeassistant-rainsensor/internal/config"
	"github.com/dmatscheko/homeassistant-rainsensor/internal/gauge"
)

// Client is the paho-backed Subscriber and Publisher.
type Client struct {
	client         paho.Client
	stateTopic     string
	readingsTopic  string
	publishTimeout time.Duration
	clock          clockwork.Clock
	logger         zerolog.Logger
}

// Connect dials the broker and returns a connected Client. slug names the
// gauge on the readings topic.
func Connect(cfg config.MQTTConfig, entityID, slug string, clock clockwork.Clock, logger zerolog.Logger) (*Client, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Broker, err)
	}

	return &Client{
		client:         client,
		stateTopic:     StateTopic(cfg.StateTopicBase, entityID),
		readingsTopic:  ReadingsTopic(cfg.ReadingsTopic, slug),
		publishTimeout: publishTimeout,
		clock:          clock,
		logger:         logger.With().Str("component", "mqtt").Logger(),
	}, nil
}

// Subscribe registers the notification handler on the state topic. The
// statestream payload is the bare state string; arrival time is stamped
// from the clock since the payload carries no timestamp.
func (c *Client) Subscribe(handler func(gauge.Notification)) error {
	token := c.client.Subscribe(c.stateTopic, 1, func(_ paho.Client, msg paho.Message) {
		handler(gauge.Notification{
			State: string(msg.Payload()),
			Time:  c.clock.Now(),
		})
	})
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", c.stateTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.stateTopic, err)
	}
	c.logger.Info().Str("topic", c.stateTopic).Msg("subscribed to sensor state topic")
	return nil
}

// PublishReadings sends one readings snapshot, retained so late consumers
// see the latest values.
func (c *Client) PublishReadings(readings gauge.Readings) error {
	payload, err := FormatReadings(readings)
	if err != nil {
		return fmt.Errorf("format readings payload: %w", err)
	}

	token := c.client.Publish(c.readingsTopic, 0, true, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("publish %s: timeout", c.readingsTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", c.readingsTopic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000)
	return nil
}

var (
	_ Subscriber = (*Client)(nil)
	_ Publisher  = (*Client)(nil)
)
