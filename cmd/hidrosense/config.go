package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sweeney/hidrosense/internal/mqtt"
	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/store"
)

// Config is the daemon configuration. Every flag falls back to an
// environment variable, then to a built-in default.
type Config struct {
	Broker       string
	MQTTUser     string
	MQTTPassword string
	TopicPrefix  string
	HTTPAddr     string
	Heartbeat    time.Duration

	DBPath string // empty keeps readings in memory

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	TelegramToken  string
	TelegramChatID string

	Activation    int
	Deactivation  int // negative disables automatic OFF commands
	NotifyTimeout time.Duration
	QueueSize     int
}

var errInvalidConfig = errors.New("invalid configuration")

func getenv(env func(string) string, k, d string) string {
	if v := env(k); v != "" {
		return v
	}
	return d
}

func getenvInt(env func(string) string, k string, d int) int {
	if v := env(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvDuration(env func(string) string, k string, d time.Duration) time.Duration {
	if v := env(k); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return d
}

// loadConfig parses args with env as the source of defaults.
func loadConfig(args []string, env func(string) string, stderr io.Writer) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("hidrosense", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.Broker, "broker", getenv(env, "HIDROSENSE_BROKER", "tcp://localhost:1883"), "MQTT broker address")
	fs.StringVar(&cfg.MQTTUser, "mqtt-user", getenv(env, "HIDROSENSE_MQTT_USER", ""), "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", getenv(env, "HIDROSENSE_MQTT_PASSWORD", ""), "MQTT password")
	fs.StringVar(&cfg.TopicPrefix, "topic-prefix", getenv(env, "HIDROSENSE_TOPIC_PREFIX", mqtt.DefaultPrefix), "MQTT topic prefix")
	fs.StringVar(&cfg.HTTPAddr, "http", getenv(env, "HIDROSENSE_HTTP_ADDR", ":8080"), "HTTP address (empty to disable)")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", getenvDuration(env, "HIDROSENSE_HEARTBEAT", 15*time.Minute), "Heartbeat interval (0 to disable)")

	fs.StringVar(&cfg.DBPath, "db", getenv(env, "HIDROSENSE_DB", ""), "SQLite database path (empty keeps readings in memory)")

	fs.StringVar(&cfg.InfluxURL, "influx-url", getenv(env, "HIDROSENSE_INFLUX_URL", ""), "InfluxDB URL for mirroring readings (empty to disable)")
	fs.StringVar(&cfg.InfluxToken, "influx-token", getenv(env, "HIDROSENSE_INFLUX_TOKEN", ""), "InfluxDB token")
	fs.StringVar(&cfg.InfluxOrg, "influx-org", getenv(env, "HIDROSENSE_INFLUX_ORG", "hidrosense"), "InfluxDB organization")
	fs.StringVar(&cfg.InfluxBucket, "influx-bucket", getenv(env, "HIDROSENSE_INFLUX_BUCKET", "hidrosense"), "InfluxDB bucket")

	fs.StringVar(&cfg.TelegramToken, "telegram-token", getenv(env, "TELEGRAM_BOT_TOKEN", ""), "Telegram bot token")
	fs.StringVar(&cfg.TelegramChatID, "telegram-chat", getenv(env, "TELEGRAM_CHAT_ID", ""), "Telegram chat ID")

	fs.IntVar(&cfg.Activation, "activation", getenvInt(env, "HIDROSENSE_ACTIVATION", store.DefaultActivation), "Activation threshold in percent")
	fs.IntVar(&cfg.Deactivation, "deactivation", getenvInt(env, "HIDROSENSE_DEACTIVATION", -1), "Deactivation threshold in percent (negative to disable)")
	fs.DurationVar(&cfg.NotifyTimeout, "notify-timeout", getenvDuration(env, "HIDROSENSE_NOTIFY_TIMEOUT", notify.DefaultTimeout), "Timeout for each outbound delivery")
	fs.IntVar(&cfg.QueueSize, "queue", getenvInt(env, "HIDROSENSE_QUEUE_SIZE", 16), "Pending alert queue size")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Broker == "" {
		return fmt.Errorf("%w: broker is required", errInvalidConfig)
	}
	if err := store.ValidatePercent(c.Activation); err != nil {
		return fmt.Errorf("%w: activation %d: %w", errInvalidConfig, c.Activation, err)
	}
	if c.Deactivation >= 0 {
		if err := store.ValidatePercent(c.Deactivation); err != nil {
			return fmt.Errorf("%w: deactivation %d: %w", errInvalidConfig, c.Deactivation, err)
		}
		if c.Deactivation <= c.Activation {
			return fmt.Errorf("%w: deactivation %d must be above activation %d", errInvalidConfig, c.Deactivation, c.Activation)
		}
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", errInvalidConfig)
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("%w: telegram token and chat ID must be set together", errInvalidConfig)
	}
	return nil
}

// deactivation returns the configured deactivation threshold, or nil.
func (c Config) deactivation() *int {
	if c.Deactivation < 0 {
		return nil
	}
	v := c.Deactivation
	return &v
}

func (c Config) storeKind() string {
	kind := "memory"
	if c.DBPath != "" {
		kind = "sqlite"
	}
	if c.InfluxURL != "" {
		kind += "+influx"
	}
	return kind
}
