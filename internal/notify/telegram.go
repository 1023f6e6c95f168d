package notify

import (
	"context"
	"fmt"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	poster
	baseURL string
	token   string
	chatID  string
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat. Telegram allows about one message per second per chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		poster:  newPoster("telegram", 1, 3),
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
	}
}

// Send posts to sendMessage with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(t.baseURL, "/"), t.token)
	return t.postJSON(ctx, url, map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
