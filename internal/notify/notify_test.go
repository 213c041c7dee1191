package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-autotrader/internal/config"
	"options-autotrader/internal/models"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

type recordingChannel struct {
	sent    []Notification
	enabled bool
	err     error
}

func (r *recordingChannel) Name() string    { return "recorder" }
func (r *recordingChannel) IsEnabled() bool { return r.enabled }
func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func closedPosition() models.Position {
	entry := time.Date(2025, 3, 4, 9, 31, 0, 0, utils.IndiaLocation)
	return models.Position{
		ID:         "p1",
		Symbol:     "BANKNIFTY25MAR48200CE",
		Exchange:   models.NFO,
		Quantity:   30,
		EntryPrice: 100,
		EntryTime:  entry,
		StopLoss:   75,
		TakeProfit: 200,
		Status:     models.PositionClosed,
		ExitPrice:  129.95,
		ExitTime:   entry.Add(45 * time.Minute),
		ExitReason: models.ExitTrailingStop,
		PnL:        898.5,
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []NotificationType
	}{
		{"all", []NotificationType{NotificationTrade, NotificationAlert, NotificationError, NotificationSummary}},
		{"", []NotificationType{NotificationTrade, NotificationAlert, NotificationError, NotificationSummary}},
		{"trades_only", []NotificationType{NotificationTrade, NotificationSummary}},
		{"errors_only", []NotificationType{NotificationError, NotificationSummary}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			rec := &recordingChannel{enabled: true}
			mn := NewMultiNotifier(config.NotificationConfig{Level: tt.level}, rec)
			ctx := context.Background()

			mn.SendExit(ctx, closedPosition())
			mn.SendRejection(ctx, models.Order{Side: models.OrderSideBuy, Underlying: "BANKNIFTY", Reason: "Order failed: timeout"})
			mn.SendError(ctx, errors.New("boom"), "fetch bars")
			mn.SendDailySummary(ctx, store.DaySummary{Day: time.Date(2025, 3, 4, 0, 0, 0, 0, utils.IndiaLocation)})

			if len(rec.sent) != len(tt.want) {
				t.Fatalf("sent %d notifications, want %d", len(rec.sent), len(tt.want))
			}
			for i, n := range rec.sent {
				if n.Type != tt.want[i] {
					t.Errorf("notification %d type = %s, want %s", i, n.Type, tt.want[i])
				}
			}
		})
	}
}

func TestExitMessage(t *testing.T) {
	rec := &recordingChannel{enabled: true}
	mn := NewMultiNotifier(config.NotificationConfig{}, rec)

	pos := closedPosition()
	if err := mn.SendExit(context.Background(), pos); err != nil {
		t.Fatalf("SendExit: %v", err)
	}

	n := rec.sent[0]
	if !strings.Contains(n.Title, "Trailing Stop") || !strings.Contains(n.Title, pos.Symbol) {
		t.Errorf("title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "+₹898.50") {
		t.Errorf("message missing P&L: %q", n.Message)
	}
	if !n.Timestamp.Equal(pos.ExitTime) {
		t.Errorf("timestamp = %v, want exit time", n.Timestamp)
	}
}

func TestDisabledChannelsSkippedAndErrorsJoined(t *testing.T) {
	off := &recordingChannel{enabled: false}
	failing := &recordingChannel{enabled: true, err: errors.New("unreachable")}
	mn := NewMultiNotifier(config.NotificationConfig{}, off, failing)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hi"})
	if err == nil || !strings.Contains(err.Error(), "recorder: unreachable") {
		t.Errorf("err = %v", err)
	}
	if len(off.sent) != 0 {
		t.Error("disabled channel received a notification")
	}
	if got := mn.Channels(); len(got) != 1 {
		t.Errorf("Channels() = %v", got)
	}
}

func TestTelegramRequiresTokenAndChat(t *testing.T) {
	ch := NewTelegramChannel(config.TelegramConfig{Enabled: true, BotToken: "123:abc"})
	if ch.IsEnabled() {
		t.Error("channel enabled without chat id")
	}
	if err := ch.Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Errorf("disabled channel returned %v", err)
	}
}

func TestTelegramSendsHTMLMessage(t *testing.T) {
	var (
		mu    sync.Mutex
		forms []url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		forms = append(forms, form)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"trader","username":"trader_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ch := NewTelegramChannel(config.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: 42})
	ch.apiEndpoint = srv.URL + "/bot%s/%s"

	err := ch.Send(context.Background(), Notification{Title: "Exit <TSL>", Message: "P&L: +₹898.50"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	last := forms[len(forms)-1]
	if last.Get("chat_id") != "42" || last.Get("parse_mode") != "HTML" {
		t.Errorf("form = %v", last)
	}
	if want := "<b>Exit &lt;TSL&gt;</b>\n\nP&amp;L: +₹898.50"; last.Get("text") != want {
		t.Errorf("text = %q, want %q", last.Get("text"), want)
	}
}

func TestLogChannelWritesFields(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel(zerolog.New(&buf))

	ch.Send(context.Background(), Notification{
		Type:  NotificationError,
		Title: "❌ Error Occurred",
		Data:  map[string]interface{}{"context": "fetch bars"},
	})

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"context":"fetch bars"`) {
		t.Errorf("log output = %s", out)
	}
}
