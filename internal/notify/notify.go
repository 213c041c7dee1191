// Package notify announces trades, rejections, errors and the daily summary
// to the operator over every enabled channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"options-autotrader/internal/config"
	"options-autotrader/internal/models"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

// Notifier is what the engine reports through.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendEntry(ctx context.Context, pos models.Position) error
	SendExit(ctx context.Context, pos models.Position) error
	SendRejection(ctx context.Context, order models.Order) error
	SendDailySummary(ctx context.Context, summary store.DaySummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel delivers a rendered notification somewhere.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

type NotificationType string

const (
	NotificationTrade   NotificationType = "trade"
	NotificationAlert   NotificationType = "alert"
	NotificationError   NotificationType = "error"
	NotificationSummary NotificationType = "summary"
	NotificationInfo    NotificationType = "info"
)

type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// Level filters, from notifications.level.
const (
	LevelAll        = "all"
	LevelTradesOnly = "trades_only"
	LevelErrorsOnly = "errors_only"
)

// MultiNotifier fans a notification out to its channels. The channel list is
// fixed at construction.
type MultiNotifier struct {
	channels []NotificationChannel
	level    string
}

var _ Notifier = (*MultiNotifier)(nil)

// NewMultiNotifier builds the Telegram channel when configured and appends
// extra after it.
func NewMultiNotifier(cfg config.NotificationConfig, extra ...NotificationChannel) *MultiNotifier {
	var channels []NotificationChannel
	if cfg.Enabled && cfg.Telegram.Enabled {
		channels = append(channels, NewTelegramChannel(cfg.Telegram))
	}
	level := cfg.Level
	if level == "" {
		level = LevelAll
	}
	return &MultiNotifier{channels: append(channels, extra...), level: level}
}

// Channels lists the enabled channel names.
func (mn *MultiNotifier) Channels() []string {
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// wants applies the level filter. Summaries pass every level.
func (mn *MultiNotifier) wants(t NotificationType) bool {
	switch {
	case t == NotificationSummary:
		return true
	case mn.level == LevelTradesOnly:
		return t == NotificationTrade
	case mn.level == LevelErrorsOnly:
		return t == NotificationError
	}
	return true
}

// Send delivers n to every enabled channel and joins their failures.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.wants(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = utils.Now()
	}

	var errs []error
	for _, ch := range mn.channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// body renders label/value pairs one per line.
func body(pairs ...string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pairs[i])
		sb.WriteString(": ")
		sb.WriteString(pairs[i+1])
	}
	return sb.String()
}

func (mn *MultiNotifier) SendEntry(ctx context.Context, pos models.Position) error {
	msg := body(
		"Symbol", pos.Symbol,
		"Quantity", fmt.Sprint(pos.Quantity),
		"Entry", utils.FormatIndianCurrency(pos.EntryPrice),
		"Stop Loss", utils.FormatIndianCurrency(pos.StopLoss),
		"Target", utils.FormatIndianCurrency(pos.TakeProfit),
	)
	if pos.TrailEnabled {
		msg += "\nTrailing stop: enabled"
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationTrade,
		Title:   "🔔 Entry: BUY " + pos.Symbol,
		Message: msg,
		Data: map[string]interface{}{
			"symbol":      pos.Symbol,
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"stop_loss":   pos.StopLoss,
			"take_profit": pos.TakeProfit,
		},
		Timestamp: pos.EntryTime,
	})
}

func (mn *MultiNotifier) SendExit(ctx context.Context, pos models.Position) error {
	mark := "💰"
	if pos.PnL < 0 {
		mark = "📉"
	}

	return mn.Send(ctx, Notification{
		Type:  NotificationTrade,
		Title: fmt.Sprintf("%s Exit (%s): %s", mark, exitLabel(pos.ExitReason), pos.Symbol),
		Message: body(
			"Symbol", pos.Symbol,
			"Quantity", fmt.Sprint(pos.Quantity),
			"Entry", utils.FormatIndianCurrency(pos.EntryPrice),
			"Exit", utils.FormatIndianCurrency(pos.ExitPrice),
			"P&L", utils.FormatPnL(pos.PnL),
		),
		Data: map[string]interface{}{
			"symbol":      pos.Symbol,
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"exit_price":  pos.ExitPrice,
			"exit_reason": string(pos.ExitReason),
			"pnl":         pos.PnL,
		},
		Timestamp: pos.ExitTime,
	})
}

// SendRejection reports an order the broker refused or that never reached it.
func (mn *MultiNotifier) SendRejection(ctx context.Context, order models.Order) error {
	symbol := order.Symbol
	if symbol == "" {
		symbol = order.Underlying
	}

	return mn.Send(ctx, Notification{
		Type:  NotificationAlert,
		Title: fmt.Sprintf("⚠️ Order Rejected: %s %s", order.Side, symbol),
		Message: body(
			"Purpose", string(order.Purpose),
			"Quantity", fmt.Sprint(order.Quantity),
			"Reason", order.Reason,
		),
		Data: map[string]interface{}{
			"record_id": order.RecordID,
			"order_id":  order.BrokerID,
			"symbol":    symbol,
			"purpose":   string(order.Purpose),
			"reason":    order.Reason,
		},
		Timestamp: order.UpdatedAt,
	})
}

func (mn *MultiNotifier) SendDailySummary(ctx context.Context, s store.DaySummary) error {
	mark := "📊"
	switch {
	case s.RealizedPnL > 0:
		mark = "💰"
	case s.RealizedPnL < 0:
		mark = "📉"
	}

	pairs := []string{
		"Total Trades", fmt.Sprint(s.Trades),
		"Winning", fmt.Sprintf("%d | Losing: %d", s.Wins, s.Losses),
		"Realized P&L", utils.FormatPnL(s.RealizedPnL),
	}
	if s.Rejected > 0 {
		pairs = append(pairs, "Rejected Orders", fmt.Sprint(s.Rejected))
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationSummary,
		Title:   fmt.Sprintf("%s Daily Summary - %s", mark, s.Day.Format("02 Jan 2006")),
		Message: body(pairs...),
		Data: map[string]interface{}{
			"day":          s.Day.Format("2006-01-02"),
			"trades":       s.Trades,
			"wins":         s.Wins,
			"losses":       s.Losses,
			"realized_pnl": s.RealizedPnL,
			"rejected":     s.Rejected,
		},
	})
}

func (mn *MultiNotifier) SendError(ctx context.Context, err error, where string) error {
	return mn.Send(ctx, Notification{
		Type:  NotificationError,
		Title: "❌ Error Occurred",
		Message: body(
			"Context", where,
			"Error", err.Error(),
			"Time", utils.Now().Format("15:04:05"),
		),
		Data: map[string]interface{}{
			"context": where,
			"error":   err.Error(),
		},
	})
}

func exitLabel(reason models.ExitReason) string {
	switch reason {
	case models.ExitStopLoss:
		return "Stop Loss"
	case models.ExitTakeProfit:
		return "Target"
	case models.ExitTrailingStop:
		return "Trailing Stop"
	case models.ExitSquareOff:
		return "Square-off"
	}
	return string(reason)
}

// NoOpNotifier drops everything. The engine uses it when no notifier is wired.
type NoOpNotifier struct{}

var _ Notifier = NoOpNotifier{}

func (NoOpNotifier) Send(context.Context, Notification) error                 { return nil }
func (NoOpNotifier) SendEntry(context.Context, models.Position) error         { return nil }
func (NoOpNotifier) SendExit(context.Context, models.Position) error          { return nil }
func (NoOpNotifier) SendRejection(context.Context, models.Order) error        { return nil }
func (NoOpNotifier) SendDailySummary(context.Context, store.DaySummary) error { return nil }
func (NoOpNotifier) SendError(context.Context, error, string) error           { return nil }
