package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

var errTelegramStatus = errors.New("telegram returned an error")

// TelegramConfig holds the bot credentials and destination chat.
type TelegramConfig struct {
	Token   string
	ChatID  string
	APIURL  string        // defaults to DefaultTelegramAPI; overridden in tests
	Timeout time.Duration // per-request HTTP timeout
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	config  TelegramConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// NewTelegram creates a Telegram alerter. It can be created unconfigured;
// Send then fails with ErrConfigurationMissing without touching the network.
func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTelegramAPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Telegram{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "telegram",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		// Telegram allows roughly one message per second to the same chat.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Configured reports whether both the bot token and the chat id are set.
func (t *Telegram) Configured() bool {
	return t.config.Token != "" && t.config.ChatID != ""
}

// Send formats the alert and posts it to the configured chat.
func (t *Telegram) Send(ctx context.Context, a Alert) error {
	if !t.Configured() {
		return ErrConfigurationMissing
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.sendMessage(ctx, FormatMessage(a))
	})
	return err
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.config.ChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram request: %w", err)
	}

	endpoint := strings.TrimRight(t.config.APIURL, "/") + "/bot" + t.config.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the bot token; keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var ar apiResponse
	_ = json.Unmarshal(raw, &ar)

	if resp.StatusCode != http.StatusOK || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("%w: status %d: %s", errTelegramStatus, resp.StatusCode, desc)
	}
	return nil
}

// FormatMessage renders the operator alert text.
func FormatMessage(a Alert) string {
	var b strings.Builder
	b.WriteString("Alerta HidroSense:\n")
	fmt.Fprintf(&b, "Umidade atual: %s%%\n", formatNumber(a.Humidity))
	fmt.Fprintf(&b, "Limite configurado: %s%%\n", formatNumber(a.Threshold))
	fmt.Fprintf(&b, "A bomba foi acionada automaticamente: %s.", a.Action)
	return b.String()
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}
