package cli

import (
	"fmt"
	"time"

	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

// FormatIndianCurrency formats an amount in lakh/crore grouping.
func FormatIndianCurrency(amount float64) string {
	return utils.FormatIndianCurrency(amount)
}

// FormatPrice formats an option premium or index level.
func FormatPrice(price float64) string {
	if price == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", price)
}

// FormatTime formats a time in IST.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(utils.IndiaLocation).Format("15:04:05")
}

// FormatDate formats a date in IST.
func FormatDate(t time.Time) string {
	return t.In(utils.IndiaLocation).Format("02-Jan-2006")
}

// FormatDateTime formats a datetime in IST.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(utils.IndiaLocation).Format("02-Jan-2006 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatExitReason spells out an exit reason for tables.
func FormatExitReason(reason models.ExitReason) string {
	switch reason {
	case models.ExitStopLoss:
		return "Stop Loss"
	case models.ExitTakeProfit:
		return "Target"
	case models.ExitTrailingStop:
		return "Trailing Stop"
	case models.ExitSquareOff:
		return "Square-off"
	case "":
		return "-"
	default:
		return string(reason)
	}
}

// FormatStatus colours an order or position status.
func (o *Output) FormatStatus(status string) string {
	switch status {
	case string(models.OrderStatusComplete), string(models.PositionActive):
		return o.Green(status)
	case string(models.OrderStatusRejected), string(models.OrderStatusCancelled):
		return o.Red(status)
	case string(models.OrderStatusPending), string(models.OrderStatusOpen):
		return o.Yellow(status)
	default:
		return status
	}
}
