// Package notify posts the daily report to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPI = "https://api.telegram.org"

// Telegram sends messages through the Bot API.
type Telegram struct {
	token  string
	chatID string
	api    string
	http   *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  strings.TrimSpace(token),
		chatID: strings.TrimSpace(chatID),
		api:    defaultAPI,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

// WithAPI points the notifier at another Bot API host.
func (t *Telegram) WithAPI(base string) *Telegram {
	t.api = strings.TrimRight(base, "/")
	return t
}

type sendMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text once. Markdown asterisks are stripped since the message
// goes out as plain text.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessage{ChatID: t.chatID, Text: strings.ReplaceAll(text, "*", "")})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.api, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		return fmt.Errorf("telegram sendMessage: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("telegram sendMessage: HTTP %d: %s", resp.StatusCode, desc)
	}
	return nil
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***")}
}
