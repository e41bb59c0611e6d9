package notifier

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

	"github.com/rs/zerolog"

	"EquityWatch/internal/logging"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Notifier delivers formatted messages.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// LogNotifier writes messages to the log. Used when Telegram is not configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.Log.Info().Str("event", "notify").Msg(text)
	return nil
}

// TelegramNotifier posts watchlist notices to one chat through the Bot API
// and answers commands coming from that chat.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIURL   string
	Client   *http.Client

	log zerolog.Logger
}

// NewTelegramNotifier builds a notifier. proxyURL is optional; an unparsable
// value is logged and ignored.
func NewTelegramNotifier(botToken, chatID, proxyURL string, logger zerolog.Logger) *TelegramNotifier {
	log := logging.WithComponent(logger, "telegram")
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			log.Warn().Err(err).Str("proxy", proxyURL).Msg("ignoring proxy")
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIURL:   defaultTelegramAPI,
		Client:   &http.Client{Timeout: 30 * time.Second, Transport: transport},
		log:      log,
	}
}

// apiError is a non-OK Bot API reply. RetryAfter is set on flood control.
type apiError struct {
	Method     string
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Message)
}

type envelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call posts payload as JSON to the named Bot API method and decodes the
// result field into out when out is non-nil.
func (t *TelegramNotifier) call(ctx context.Context, client *http.Client, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	endpoint := strings.TrimRight(t.APIURL, "/") + "/bot" + t.BotToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s reply: %w", method, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK || !env.OK {
		msg := env.Description
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &apiError{
			Method:     method,
			Status:     resp.StatusCode,
			Message:    msg,
			RetryAfter: time.Duration(env.Parameters.RetryAfter) * time.Second,
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s reply: %w", method, decodeErr)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Send posts an HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	return t.call(ctx, t.Client, "sendMessage", map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}, nil)
}

// SendWithRetry retries Send up to retries more times. The wait doubles from
// one second unless Telegram asks for a specific retry_after.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, retries int) error {
	wait := time.Second
	var err error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if err = t.Send(ctx, text); err == nil {
			return nil
		}
		if attempt > retries {
			break
		}
		delay := wait
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}
		t.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("message not delivered")
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		wait *= 2
	}
	return fmt.Errorf("message not delivered after %d attempts: %w", retries+1, err)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
