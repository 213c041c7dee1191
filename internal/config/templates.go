package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Autotrader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Underlying to trade: BANKNIFTY, NIFTY, CRUDEOIL
underlying = "BANKNIFTY"
# Engine cycle interval
tick_interval = "10s"
# Wait before the single post-submission status check
status_check_delay = "2s"
# Start trading as soon as the engine runs
auto_start = false

[strategy]
# Strikes away from ATM (calls above, puts below)
otm_distance = 1
# Lots per entry, unless override_quantity is set
lots = 1
override_quantity = false
quantity = 30
# Static exit levels in option price points
stop_loss_points = 25.0
take_profit_points = 100.0
# Historical bars used for the signal
bar_interval = "5minute"
lookback = "120h"

[strategy.trailing_stop]
enabled = true
# Points of profit that arm the trailing stop
trigger = 25.0
# Distance kept below the latest price once armed (must be less than trigger)
step = 10.0

[risk]
max_trades_per_day = 5
# Realised loss in INR that stops new entries for the day
max_loss_per_day = 3000.0
order_cooldown = "30s"
signal_cooldown = "10s"

# Per-underlying overrides. Built-in values are used for unset fields.
# [instruments.BANKNIFTY]
# lot_size = 30
# entry_start = "09:20"
# last_entry = "14:45"
# square_off = "15:10"

[logging]
level = "info"
console = true
file = true

[notifications]
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = 0

[server]
# Read-only status and start/stop control over HTTP
enabled = false
addr = "127.0.0.1:8085"

[storage]
# Defaults to engine.db and instruments/ inside the config directory
db_path = ""
cache_dir = ""
`

const credentialsTemplate = `# Options Autotrader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
# Issued by the Kite login flow; valid until 06:00 IST the next day
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
