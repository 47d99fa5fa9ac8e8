package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口：向单个用户发送一条消息。
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息，chat_id 即用户 ID。
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notifier_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送 HTML 文本。
func (n *TelegramNotifier) Notify(ctx context.Context, userID int64, text string) error {
	payload := map[string]string{
		"chat_id":    strconv.FormatInt(userID, 10),
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Debug().Int64("user_id", userID).Msg("alert delivered")
	return nil
}

// LogNotifier 仅写日志，用于未配置 Telegram 的本地运行。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier_log").Logger()}
}

// Notify 记录消息内容。
func (n *LogNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.logger.Info().Int64("user_id", userID).Str("text", text).Msg("alert notification")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
