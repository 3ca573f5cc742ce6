package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BradenHooton/bruteguard/internal/models"
)

const (
	SettingTelegramBotToken = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
)

// SettingsReader reads runtime settings at send time so credentials can be
// changed from the dashboard without a restart.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// TelegramSink posts alerts through the Telegram Bot API.
type TelegramSink struct {
	apiURL   string
	settings SettingsReader
	client   *http.Client
}

func NewTelegramSink(apiURL string, settings SettingsReader, client *http.Client) *TelegramSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramSink{
		apiURL:   strings.TrimRight(apiURL, "/"),
		settings: settings,
		client:   client,
	}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, evt Event) error {
	token, err := s.setting(ctx, SettingTelegramBotToken)
	if err != nil {
		return err
	}
	chatID, err := s.setting(ctx, SettingTelegramChatID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       FormatAlert(evt),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("encoding telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		return errors.New("telegram request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *TelegramSink) setting(ctx context.Context, key string) (string, error) {
	v, err := s.settings.Get(ctx, key)
	if errors.Is(err, models.ErrNotFound) || (err == nil && strings.TrimSpace(v) == "") {
		return "", ErrNotConfigured
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return strings.TrimSpace(v), nil
}
