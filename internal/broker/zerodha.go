package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"options-autotrader/internal/errors"
	"options-autotrader/internal/logging"
	"options-autotrader/internal/models"
	"options-autotrader/pkg/utils"
)

// ZerodhaBroker implements Broker on Kite Connect. The access token is
// issued by the login flow outside this program.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	authenticated bool
	mu            sync.RWMutex
}

var _ Broker = (*ZerodhaBroker)(nil)

// ZerodhaConfig holds configuration for Zerodha broker.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
	BaseURI     string // overrides the Kite endpoint, used by tests
}

// NewZerodhaBroker creates a new Zerodha broker instance.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.BaseURI != "" {
		client.SetBaseURI(cfg.BaseURI)
	}

	zb := &ZerodhaBroker{
		client: client,
		apiKey: cfg.APIKey,
	}
	if cfg.AccessToken != "" {
		zb.SetAccessToken(cfg.AccessToken)
	}
	return zb
}

// SetAccessToken installs an access token for subsequent calls.
func (z *ZerodhaBroker) SetAccessToken(token string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.client.SetAccessToken(token)
	z.authenticated = token != ""
}

// IsAuthenticated reports whether an access token is installed.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// GetHistoricalBars fetches OHLC bars for an instrument token.
func (z *ZerodhaBroker) GetHistoricalBars(ctx context.Context, token uint32, from, to time.Time, interval string) ([]models.Candle, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	start := time.Now()
	data, err := z.client.GetHistoricalData(int(token), interval, from, to, false, false)
	logging.LogAPICall(logging.FromContext(ctx), "GET", "historical", time.Since(start), err)
	if err != nil {
		return nil, errors.NewBrokerError("HISTORICAL", fmt.Sprintf("historical data for token %d", token), err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time.In(utils.IndiaLocation),
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// GetLastPrice returns the last traded price for an "EXCHANGE:SYMBOL" key.
func (z *ZerodhaBroker) GetLastPrice(ctx context.Context, quoteKey string) (float64, error) {
	if !z.IsAuthenticated() {
		return 0, errors.ErrNotAuthenticated
	}

	start := time.Now()
	quotes, err := z.client.GetLTP(quoteKey)
	logging.LogAPICall(logging.FromContext(ctx), "GET", "quote/ltp", time.Since(start), err)
	if err != nil {
		return 0, errors.NewBrokerError("LTP", quoteKey, err)
	}

	q, ok := quotes[quoteKey]
	if !ok {
		return 0, fmt.Errorf("quote %s: %w", quoteKey, errors.ErrDataNotFound)
	}
	return q.LastPrice, nil
}

// ListOptionUniverse returns the derivative rows of an exchange.
func (z *ZerodhaBroker) ListOptionUniverse(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	start := time.Now()
	instruments, err := z.client.GetInstrumentsByExchange(string(exchange))
	logging.LogAPICall(logging.FromContext(ctx), "GET", "instruments/"+string(exchange), time.Since(start), err)
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS", string(exchange), err)
	}

	result := make([]models.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		typ := models.InstrumentType(inst.InstrumentType)
		if !typ.IsOption() && typ != models.InstrumentFUT {
			continue
		}
		result = append(result, models.Instrument{
			Token:    uint32(inst.InstrumentToken),
			Symbol:   inst.Tradingsymbol,
			Name:     inst.Name,
			Exchange: models.Exchange(inst.Exchange),
			Segment:  inst.Segment,
			Type:     typ,
			Strike:   inst.StrikePrice,
			Expiry:   inst.Expiry.Time,
			TickSize: inst.TickSize,
			LotSize:  int(inst.LotSize),
		})
	}

	return result, nil
}

// SubmitOrder places a regular-variety DAY order and returns the broker order ID.
func (z *ZerodhaBroker) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if !z.IsAuthenticated() {
		return "", errors.ErrNotAuthenticated
	}
	if err := ValidateOrder(req); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, toOrderParams(req))
	logging.LogAPICall(logging.FromContext(ctx), "POST", "orders/regular", time.Since(start), err)
	if err != nil {
		return "", errors.NewOrderError("place", "", req.Symbol, err)
	}

	return resp.OrderID, nil
}

// GetOrderStatus returns the latest state in the order's history.
func (z *ZerodhaBroker) GetOrderStatus(ctx context.Context, orderID string) (models.OrderState, error) {
	if !z.IsAuthenticated() {
		return models.OrderState{}, errors.ErrNotAuthenticated
	}

	start := time.Now()
	history, err := z.client.GetOrderHistory(orderID)
	logging.LogAPICall(logging.FromContext(ctx), "GET", "orders/"+orderID, time.Since(start), err)
	if err != nil {
		return models.OrderState{}, errors.NewOrderError("status", orderID, "", err)
	}
	if len(history) == 0 {
		return models.OrderState{}, fmt.Errorf("order %s: %w", orderID, errors.ErrDataNotFound)
	}

	latest := history[len(history)-1]
	return models.OrderState{
		OrderID:      orderID,
		Status:       models.NormalizeOrderStatus(latest.Status),
		Reason:       latest.StatusMessage,
		AveragePrice: latest.AveragePrice,
		FilledQty:    int(latest.FilledQuantity),
	}, nil
}

func toOrderParams(req models.OrderRequest) kiteconnect.OrderParams {
	product := req.Product
	if product == "" {
		product = models.ProductMIS
	}
	params := kiteconnect.OrderParams{
		Exchange:        string(req.Exchange),
		Tradingsymbol:   req.Symbol,
		TransactionType: string(req.Side),
		OrderType:       string(req.Type),
		Product:         string(product),
		Quantity:        req.Quantity,
		Validity:        kiteconnect.ValidityDay,
		Tag:             req.Tag,
	}
	if req.Type == models.OrderTypeLimit {
		params.Price = req.Price
	}
	return params
}
