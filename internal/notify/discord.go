package notify

import (
	"context"
	"fmt"
)

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	poster
	webhookURL string
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
// Webhooks allow roughly five requests per two seconds.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		poster:     newPoster("discord", 2.5, 5),
		webhookURL: webhookURL,
	}
}

// Send posts the message with the title in bold. Discord answers 204.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return d.postJSON(ctx, d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
