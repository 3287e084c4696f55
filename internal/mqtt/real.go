package mqtt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string // a random suffix is appended so restarts never collide
	Username       string
	Password       string
	Topics         Topics
	ConnectTimeout time.Duration // overall budget for the initial connect retries
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	topics Topics

	mu   sync.Mutex
	subs map[string]Handler
}

// NewRealClient connects to the broker, retrying with exponential backoff.
// Once connected, paho reconnects on its own and subscriptions are
// re-issued from the OnConnect handler.
func NewRealClient(cfg Config) (*RealClient, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "hidrosense"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	c := &RealClient{
		topics: cfg.Topics,
		subs:   make(map[string]Handler),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID+"_"+uuid.NewString()[:8]).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetBinaryWill(cfg.Topics.System, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		}).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			log.Printf("mqtt: reconnecting to %s", cfg.Broker)
		})

	c.client = paho.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectTimeout

	err := backoff.Retry(func() error {
		token := c.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			log.Printf("mqtt: connect to %s timed out", cfg.Broker)
			return ErrTimeout
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s: %v", cfg.Broker, err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Printf("mqtt: connected to %s", cfg.Broker)
	return c, nil
}

// onConnect runs after every (re)connection and restores subscriptions.
func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(client, topic, h); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, err)
		}
	}
}

func (c *RealClient) subscribe(client paho.Client, topic string, h Handler) error {
	// QoS 0: messages arriving while disconnected are lost, never replayed
	token := client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return ErrTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	log.Printf("mqtt: subscribed to %s", topic)
	return nil
}

// Subscribe registers h for topic and subscribes immediately if connected.
func (c *RealClient) Subscribe(topic string, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = h
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// onConnect picks it up
		return nil
	}
	if err := c.subscribe(c.client, topic, h); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// PublishCommand sends a pump command at QoS 0, not retained.
func (c *RealClient) PublishCommand(ctx context.Context, cmd Command) error {
	payload, err := FormatCommand(cmd)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	if err := c.publish(ctx, c.topics.Pump, 0, false, payload); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}

// PublishThreshold sends the activation threshold to the sensor at QoS 0.
func (c *RealClient) PublishThreshold(ctx context.Context, threshold int) error {
	if err := c.publish(ctx, c.topics.Threshold, 0, false, FormatThreshold(threshold)); err != nil {
		return fmt.Errorf("publish threshold: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	if err := c.publish(ctx, c.topics.System, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (c *RealClient) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// IsConnected reports whether the broker connection is currently open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
