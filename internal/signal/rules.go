package signal

import "options-autotrader/internal/models"

// Rule is one row of the classifier's precedence table.
type Rule struct {
	Name      string
	Direction models.Direction
	Qualifier string
	Reason    string
	Match     func(models.MarketSnapshot) bool
}

// ReasonNoSignal is reported when no rule matches.
const ReasonNoSignal = "No clear signal"

// Rules returns the precedence table, first match wins.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

var rules = []Rule{
	{
		Name:      "ema_bull_stoch_favorable",
		Direction: models.Bullish,
		Qualifier: QualifierCombined,
		Reason:    "EMA alignment + Stochastic favorable",
		Match: func(s models.MarketSnapshot) bool {
			return EMABullish(s) && (StochOversold(s) || StochBullCross(s))
		},
	},
	{
		Name:      "ema_bear_stoch_favorable",
		Direction: models.Bearish,
		Qualifier: QualifierCombined,
		Reason:    "EMA alignment + Stochastic favorable",
		Match: func(s models.MarketSnapshot) bool {
			return EMABearish(s) && (StochOverbought(s) || StochBearCross(s))
		},
	},
	{
		Name:      "stoch_oversold",
		Direction: models.Bullish,
		Qualifier: QualifierStochOnly,
		Reason:    "Stochastic oversold",
		Match:     StochOversold,
	},
	{
		Name:      "stoch_overbought",
		Direction: models.Bearish,
		Qualifier: QualifierStochOnly,
		Reason:    "Stochastic overbought",
		Match:     StochOverbought,
	},
	{
		Name:      "stoch_bull_cross",
		Direction: models.Bullish,
		Qualifier: QualifierStochOnly,
		Reason:    "Stochastic bullish cross",
		Match:     StochBullCross,
	},
	{
		Name:      "stoch_bear_cross",
		Direction: models.Bearish,
		Qualifier: QualifierStochOnly,
		Reason:    "Stochastic bearish cross",
		Match:     StochBearCross,
	},
	{
		Name:      "ema_bull",
		Direction: models.Bullish,
		Qualifier: QualifierEMAOnly,
		Reason:    "EMA alignment only",
		Match:     EMABullish,
	},
	{
		Name:      "ema_bear",
		Direction: models.Bearish,
		Qualifier: QualifierEMAOnly,
		Reason:    "EMA alignment only",
		Match:     EMABearish,
	},
}

// EMABullish reports close > fast > medium > slow.
func EMABullish(s models.MarketSnapshot) bool {
	return s.Close > s.EMAFast && s.EMAFast > s.EMAMedium && s.EMAMedium > s.EMASlow
}

// EMABearish reports close < fast < medium < slow.
func EMABearish(s models.MarketSnapshot) bool {
	return s.Close < s.EMAFast && s.EMAFast < s.EMAMedium && s.EMAMedium < s.EMASlow
}

func StochOversold(s models.MarketSnapshot) bool {
	return s.StochK < Oversold && s.StochD < Oversold
}

func StochOverbought(s models.MarketSnapshot) bool {
	return s.StochK > Overbought && s.StochD > Overbought
}

func StochBullCross(s models.MarketSnapshot) bool {
	return s.StochK > s.StochD && s.StochK > CrossPivot
}

func StochBearCross(s models.MarketSnapshot) bool {
	return s.StochK < s.StochD && s.StochK < CrossPivot
}
