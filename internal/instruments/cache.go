package instruments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

const expiryLayout = "2006-01-02"

// Source fetches the full instrument list of an exchange from the broker.
type Source interface {
	ListOptionUniverse(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
}

// csvRow is the on-disk layout, column-compatible with the Kite instruments dump.
type csvRow struct {
	Token          int64   `csv:"instrument_token"`
	Symbol         string  `csv:"tradingsymbol"`
	Name           string  `csv:"name"`
	Expiry         string  `csv:"expiry"`
	Strike         float64 `csv:"strike"`
	TickSize       float64 `csv:"tick_size"`
	LotSize        int     `csv:"lot_size"`
	InstrumentType string  `csv:"instrument_type"`
	Segment        string  `csv:"segment"`
	Exchange       string  `csv:"exchange"`
}

type cacheEntry struct {
	rows    []models.Instrument
	expires time.Time
}

// Cache keeps one CSV file per exchange and refreshes it at most once a day.
// A stale file is served when the broker cannot be reached and is held in
// memory for staleRetry before the broker is tried again.
type Cache struct {
	source     Source
	dir        string
	maxAge     time.Duration
	staleRetry time.Duration
	logger     zerolog.Logger
	retry  utils.RetryConfig
	now    func() time.Time

	mu     sync.Mutex
	memory map[models.Exchange]cacheEntry
}

// NewCache creates an instrument cache rooted at dir.
func NewCache(source Source, dir string, logger zerolog.Logger) *Cache {
	return &Cache{
		source: source,
		dir:    dir,
		maxAge:     24 * time.Hour,
		staleRetry: 15 * time.Minute,
		logger:     logger,
		retry:      fetchRetry(),
		now:        time.Now,
		memory:     make(map[models.Exchange]cacheEntry),
	}
}

// fetchRetry retries the universe download on anything but missing or
// invalid credentials and paper mode.
func fetchRetry() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, errors.ErrNotAuthenticated) && !errors.Is(err, errors.ErrNoDataSource)
	}
	return cfg
}

// Instruments implements Universe.
func (c *Cache) Instruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.memory[exchange]; ok && now.Before(entry.expires) {
		return entry.rows, nil
	}

	path := c.path(exchange)
	if info, err := os.Stat(path); err == nil && now.Sub(info.ModTime()) < c.maxAge {
		rows, err := readCSV(path)
		if err == nil {
			c.memory[exchange] = cacheEntry{rows: rows, expires: info.ModTime().Add(c.maxAge)}
			return rows, nil
		}
		c.logger.Warn().Err(err).Str("path", path).Msg("Instrument cache unreadable, refetching")
	}

	rows, fetchErr := utils.RetryWithResult(ctx, c.retry, func() ([]models.Instrument, error) {
		return c.source.ListOptionUniverse(ctx, exchange)
	})
	if fetchErr == nil {
		if err := writeCSV(path, rows); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to persist instrument cache")
		}
		c.memory[exchange] = cacheEntry{rows: rows, expires: now.Add(c.maxAge)}
		c.logger.Info().Str("exchange", string(exchange)).Int("count", len(rows)).Msg("Instrument universe refreshed")
		return rows, nil
	}

	if rows, err := readCSV(path); err == nil {
		c.logger.Warn().Err(fetchErr).Str("exchange", string(exchange)).Dur("retry_in", c.staleRetry).Msg("Using stale instrument cache")
		c.memory[exchange] = cacheEntry{rows: rows, expires: now.Add(c.staleRetry)}
		return rows, nil
	}
	return nil, errors.NewDataError("instruments", string(exchange), "universe unavailable", fetchErr)
}

func (c *Cache) path(exchange models.Exchange) string {
	return filepath.Join(c.dir, fmt.Sprintf("instruments_%s.csv", strings.ToUpper(string(exchange))))
}

func writeCSV(path string, instruments []models.Instrument) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	rows := make([]*csvRow, len(instruments))
	for i, inst := range instruments {
		expiry := ""
		if !inst.Expiry.IsZero() {
			expiry = inst.Expiry.Format(expiryLayout)
		}
		rows[i] = &csvRow{
			Token:          int64(inst.Token),
			Symbol:         inst.Symbol,
			Name:           inst.Name,
			Expiry:         expiry,
			Strike:         inst.Strike,
			TickSize:       inst.TickSize,
			LotSize:        inst.LotSize,
			InstrumentType: string(inst.Type),
			Segment:        inst.Segment,
			Exchange:       string(inst.Exchange),
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readCSV(path string) ([]models.Instrument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := make([]models.Instrument, 0, len(rows))
	for _, row := range rows {
		inst, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func parseRow(row *csvRow) (models.Instrument, error) {
	inst := models.Instrument{
		Token:    uint32(row.Token),
		Symbol:   row.Symbol,
		Name:     row.Name,
		Exchange: models.Exchange(row.Exchange),
		Segment:  row.Segment,
		Type:     models.InstrumentType(row.InstrumentType),
		Strike:   row.Strike,
		TickSize: row.TickSize,
		LotSize:  row.LotSize,
	}
	if row.Expiry != "" {
		expiry, err := time.ParseInLocation(expiryLayout, row.Expiry, utils.IndiaLocation)
		if err != nil {
			return models.Instrument{}, fmt.Errorf("row %s: bad expiry %q: %w", row.Symbol, row.Expiry, err)
		}
		inst.Expiry = expiry
	}
	return inst, nil
}
