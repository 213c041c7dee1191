package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"options-autotrader/internal/config"
)

// TelegramChannel sends notifications to one chat through a Telegram bot.
// The bot is created on first use so a bad token does not block startup.
type TelegramChannel struct {
	botToken    string
	chatID      int64
	apiEndpoint string
	enabled     bool

	bot *tgbot.BotAPI
	mu  sync.Mutex
}

// NewTelegramChannel creates a new TelegramChannel.
func NewTelegramChannel(cfg config.TelegramConfig) *TelegramChannel {
	return &TelegramChannel{
		botToken:    cfg.BotToken,
		chatID:      cfg.ChatID,
		apiEndpoint: tgbot.APIEndpoint,
		enabled:     cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != 0,
	}
}

// Name returns the name of the channel.
func (t *TelegramChannel) Name() string {
	return "telegram"
}

// IsEnabled returns whether the channel is enabled.
func (t *TelegramChannel) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification as an HTML message.
func (t *TelegramChannel) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	bot, err := t.client()
	if err != nil {
		return err
	}

	msg := tgbot.NewMessage(t.chatID, fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message)))
	msg.ParseMode = tgbot.ModeHTML

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

func (t *TelegramChannel) client() (*tgbot.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbot.NewBotAPIWithAPIEndpoint(t.botToken, t.apiEndpoint)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
