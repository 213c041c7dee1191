// Package utils holds market-time, formatting and retry helpers shared by the
// engine and the CLI.
package utils

import (
	"strconv"
	"strings"
)

// FormatIndianCurrency renders amount in rupees with lakh/crore grouping,
// e.g. ₹1,23,45,678.90. Negative amounts are prefixed with "-".
func FormatIndianCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	digits := strconv.FormatFloat(amount, 'f', 2, 64)
	whole, paise, _ := strings.Cut(digits, ".")
	return sign + "₹" + groupLakh(whole) + "." + paise
}

// groupLakh puts a comma before the last three digits and every two after.
func groupLakh(whole string) string {
	if len(whole) <= 3 {
		return whole
	}
	head, tail := whole[:len(whole)-3], whole[len(whole)-3:]

	var b strings.Builder
	lead := len(head) % 2
	if lead == 1 {
		b.WriteString(head[:1])
	}
	for i := lead; i < len(head); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}

// FormatPnL is FormatIndianCurrency with a "+" on gains.
func FormatPnL(pnl float64) string {
	if pnl > 0 {
		return "+" + FormatIndianCurrency(pnl)
	}
	return FormatIndianCurrency(pnl)
}
