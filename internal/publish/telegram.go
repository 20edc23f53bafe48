package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/interceptors"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram bot token or chat id is missing")

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// APIError is a Telegram response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s failed (%d): %s, retry after %ds", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Sender delivers formatted messages. *TelegramClient implements it.
type Sender interface {
	SendMessage(ctx context.Context, text string) ([]int64, error)
	SendPhoto(ctx context.Context, photoURL, caption string) ([]int64, error)
	SendMediaGroup(ctx context.Context, photoURLs []string, caption string) ([]int64, error)
}

// TelegramClient calls the Bot API.
type TelegramClient struct {
	baseURL string
	chatID  string
	http    *circuitbreaker.HTTPWrapper
}

// NewTelegramClient validates credentials and builds a client.
func NewTelegramClient(cfg TelegramConfig, logger *zap.Logger) (*TelegramClient, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: interceptors.NewWorkflowHTTPRoundTripper(nil),
	}
	return &TelegramClient{
		baseURL: base + "/bot" + cfg.BotToken,
		chatID:  cfg.ChatID,
		http:    circuitbreaker.NewHTTPWrapper(hc, "telegram", "telegram", logger),
	}, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage posts text in HTML parse mode.
func (c *TelegramClient) SendMessage(ctx context.Context, text string) ([]int64, error) {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// SendPhoto posts one photo by URL with a caption.
func (c *TelegramClient) SendPhoto(ctx context.Context, photoURL, caption string) ([]int64, error) {
	return c.call(ctx, "sendPhoto", map[string]any{
		"chat_id":    c.chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	})
}

// SendMediaGroup posts an album; the caption goes on the first item.
func (c *TelegramClient) SendMediaGroup(ctx context.Context, photoURLs []string, caption string) ([]int64, error) {
	if len(photoURLs) == 0 {
		return nil, fmt.Errorf("media group needs at least one photo")
	}
	media := make([]inputMedia, 0, len(photoURLs))
	for i, u := range photoURLs {
		item := inputMedia{Type: "photo", Media: u}
		if i == 0 && caption != "" {
			item.Caption = caption
			item.ParseMode = "HTML"
		}
		media = append(media, item)
	}
	return c.call(ctx, "sendMediaGroup", map[string]any{
		"chat_id": c.chatID,
		"media":   media,
	})
}

func (c *TelegramClient) call(ctx context.Context, method string, payload map[string]any) ([]int64, error) {
	url := c.baseURL + "/" + method
	ctx, span := tracing.StartSpan(ctx, "telegram."+method)
	defer span.End()

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &APIError{Method: method, Code: code, Description: out.Description, RetryAfter: out.Parameters.RetryAfter}
	}

	// sendMediaGroup returns a list, the others a single message.
	var many []sentMessage
	if err := json.Unmarshal(out.Result, &many); err == nil {
		ids := make([]int64, 0, len(many))
		for _, m := range many {
			ids = append(ids, m.MessageID)
		}
		return ids, nil
	}
	var one sentMessage
	if err := json.Unmarshal(out.Result, &one); err != nil {
		return nil, fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return []int64{one.MessageID}, nil
}
