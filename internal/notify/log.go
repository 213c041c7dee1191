package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel writes notifications to the engine log. It is always enabled
// and keeps a record of what was announced even when Telegram is off.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a channel that writes to logger.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "notify").Logger()}
}

// Name returns the name of the channel.
func (l *LogChannel) Name() string {
	return "log"
}

// IsEnabled always returns true.
func (l *LogChannel) IsEnabled() bool {
	return true
}

// Send logs the notification at a level matching its type.
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	var event *zerolog.Event
	switch n.Type {
	case NotificationError:
		event = l.logger.Error()
	case NotificationAlert:
		event = l.logger.Warn()
	default:
		event = l.logger.Info()
	}

	event.
		Str("type", string(n.Type)).
		Fields(n.Data).
		Msg(n.Title)
	return nil
}
