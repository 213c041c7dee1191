package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

// SQLiteStore implements Journal using SQLite.
// Timestamps are written in UTC so that range queries compare correctly.
type SQLiteStore struct {
	db *sql.DB
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based journal.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The engine is the only writer; readers are the API and CLI.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Orders journal, one row per order attempt
	CREATE TABLE IF NOT EXISTS orders (
		record_id TEXT PRIMARY KEY,
		broker_id TEXT NOT NULL DEFAULT '',
		underlying TEXT NOT NULL,
		symbol TEXT NOT NULL DEFAULT '',
		exchange TEXT NOT NULL DEFAULT '',
		option_type TEXT NOT NULL DEFAULT '',
		strike REAL NOT NULL DEFAULT 0,
		side TEXT NOT NULL,
		purpose TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		requested_price REAL NOT NULL DEFAULT 0,
		average_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Positions, upserted on every mutation
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		entry_order_id TEXT NOT NULL DEFAULT '',
		exit_order_id TEXT NOT NULL DEFAULT '',
		underlying TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		tick_size REAL NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		high_water_mark REAL NOT NULL,
		trail_enabled INTEGER NOT NULL DEFAULT 0,
		trail_armed INTEGER NOT NULL DEFAULT 0,
		trail_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		exit_price REAL NOT NULL DEFAULT 0,
		exit_time DATETIME,
		exit_reason TEXT NOT NULL DEFAULT '',
		pnl REAL NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_submitted ON orders(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_positions_entry ON positions(entry_time);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Orders Methods
// ============================================================================

const orderColumns = `record_id, broker_id, underlying, symbol, exchange, option_type, strike, side, purpose,
	order_type, quantity, requested_price, average_price, status, reason, submitted_at, updated_at`

// AppendOrder inserts a new order record.
func (s *SQLiteStore) AppendOrder(ctx context.Context, o models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.RecordID, o.BrokerID, o.Underlying, o.Symbol, o.Exchange, o.OptionType, o.Strike, o.Side, o.Purpose,
		o.Type, o.Quantity, o.RequestedPrice, o.AveragePrice, o.Status, o.Reason, o.SubmittedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append order: %w", err)
	}
	return nil
}

// UpdateOrderStatus refreshes the mutable fields of an order record.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, recordID string, state models.OrderState, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, reason = CASE WHEN ? = '' THEN reason ELSE ? END,
			average_price = CASE WHEN ? > 0 THEN ? ELSE average_price END,
			updated_at = ?
		WHERE record_id = ?
	`, state.Status, state.Reason, state.Reason, state.AveragePrice, state.AveragePrice, at.UTC(), recordID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", recordID)
	}
	return nil
}

// OrdersBetween returns orders submitted in [from, to), oldest first.
func (s *SQLiteStore) OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE submitted_at >= ? AND submitted_at < ?
		ORDER BY submitted_at ASC
	`, from.UTC(), to.UTC())
}

// PendingOrders returns orders that reached the broker and are not terminal.
func (s *SQLiteStore) PendingOrders(ctx context.Context) ([]models.Order, error) {
	return s.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE broker_id != '' AND status NOT IN (?, ?, ?)
		ORDER BY submitted_at ASC
	`, models.OrderStatusComplete, models.OrderStatusRejected, models.OrderStatusCancelled)
}

// LastOrderTime returns the submission time of the latest entry order
// accepted by the broker, or the zero time.
func (s *SQLiteStore) LastOrderTime(ctx context.Context) (time.Time, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(submitted_at) FROM orders WHERE purpose = ? AND broker_id != ''
	`, models.PurposeEntry).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get last order time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return parseTimestamp(last.String)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.RecordID, &o.BrokerID, &o.Underlying, &o.Symbol, &o.Exchange, &o.OptionType, &o.Strike,
			&o.Side, &o.Purpose, &o.Type, &o.Quantity, &o.RequestedPrice, &o.AveragePrice, &o.Status, &o.Reason,
			&o.SubmittedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.SubmittedAt = o.SubmittedAt.In(utils.IndiaLocation)
		o.UpdatedAt = o.UpdatedAt.In(utils.IndiaLocation)
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// ============================================================================
// Positions Methods
// ============================================================================

const positionColumns = `id, entry_order_id, exit_order_id, underlying, symbol, exchange, option_type, strike,
	tick_size, quantity, entry_price, entry_time, stop_loss, take_profit, high_water_mark, trail_enabled,
	trail_armed, trail_price, status, exit_price, exit_time, exit_reason, pnl`

// SavePosition inserts or replaces a position.
func (s *SQLiteStore) SavePosition(ctx context.Context, p models.Position) error {
	var exitTime sql.NullTime
	if !p.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: p.ExitTime.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions (`+positionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.EntryOrderID, p.ExitOrderID, p.Underlying, p.Symbol, p.Exchange, p.OptionType, p.Strike,
		p.TickSize, p.Quantity, p.EntryPrice, p.EntryTime.UTC(), p.StopLoss, p.TakeProfit, p.HighWaterMark,
		boolToInt(p.TrailEnabled), boolToInt(p.TrailArmed), p.TrailPrice, p.Status, p.ExitPrice, exitTime,
		p.ExitReason, p.PnL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// ActivePositions returns every position still Active.
func (s *SQLiteStore) ActivePositions(ctx context.Context) ([]models.Position, error) {
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+` FROM positions WHERE status = ? ORDER BY entry_time ASC
	`, models.PositionActive)
}

// PositionsBetween returns positions entered in [from, to), oldest first.
func (s *SQLiteStore) PositionsBetween(ctx context.Context, from, to time.Time) ([]models.Position, error) {
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE entry_time >= ? AND entry_time < ?
		ORDER BY entry_time ASC
	`, from.UTC(), to.UTC())
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...interface{}) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var trailEnabled, trailArmed int
		var exitTime sql.NullTime

		if err := rows.Scan(&p.ID, &p.EntryOrderID, &p.ExitOrderID, &p.Underlying, &p.Symbol, &p.Exchange,
			&p.OptionType, &p.Strike, &p.TickSize, &p.Quantity, &p.EntryPrice, &p.EntryTime, &p.StopLoss,
			&p.TakeProfit, &p.HighWaterMark, &trailEnabled, &trailArmed, &p.TrailPrice, &p.Status, &p.ExitPrice,
			&exitTime, &p.ExitReason, &p.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		p.TrailEnabled = trailEnabled == 1
		p.TrailArmed = trailArmed == 1
		p.EntryTime = p.EntryTime.In(utils.IndiaLocation)
		if exitTime.Valid {
			p.ExitTime = exitTime.Time.In(utils.IndiaLocation)
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTimestamp parses an aggregate result, which the driver returns as text.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(utils.IndiaLocation), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
