package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"options-autotrader/internal/engine"
	"options-autotrader/internal/models"
	"options-autotrader/internal/store"
	"options-autotrader/pkg/utils"
)

// Controller is the engine surface the API reads and posts requests to.
// Requests take effect at the next cycle boundary.
type Controller interface {
	Status() engine.Status
	Start()
	Stop()
	RequestSquareOff()
	Hub() *engine.Hub
}

// Journal is the read side of the trade journal.
type Journal interface {
	OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	PositionsBetween(ctx context.Context, from, to time.Time) ([]models.Position, error)
}

// Handler serves the API routes.
type Handler struct {
	ctl       Controller
	journal   Journal
	heartbeat time.Duration
}

// NewHandler creates a handler.
func NewHandler(ctl Controller, journal Journal, heartbeat time.Duration) *Handler {
	return &Handler{ctl: ctl, journal: journal, heartbeat: heartbeat}
}

// Health reports whether the cycle loop is still completing cycles.
func (h *Handler) Health(c *gin.Context) {
	st := h.ctl.Status()
	metrics := h.ctl.Hub().Metrics()

	code, status := http.StatusOK, "ok"
	if h.heartbeat > 0 && !st.LastCycle.IsZero() && time.Since(st.LastCycle) > h.heartbeat {
		code, status = http.StatusServiceUnavailable, "degraded"
	}

	c.JSON(code, gin.H{
		"status":      status,
		"running":     st.Running,
		"last_cycle":  st.LastCycle,
		"subscribers": metrics.Subscribers,
		"dropped":     metrics.Dropped,
	})
}

// GetStatus returns the last published engine status.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.ctl.Status()})
}

// StreamStatus pushes every published status as a server-sent event.
func (h *Handler) StreamStatus(c *gin.Context) {
	id := uuid.NewString()
	ch := h.ctl.Hub().Subscribe(id)
	defer h.ctl.Hub().Unsubscribe(id)

	c.SSEvent("status", h.ctl.Status())
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case st, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("status", st)
			return true
		}
	})
}

// GetOrders returns the orders of a trading day (?day=YYYY-MM-DD, default today).
func (h *Handler) GetOrders(c *gin.Context) {
	from, ok := dayParam(c)
	if !ok {
		return
	}

	orders, err := h.journal.OrdersBetween(c.Request.Context(), from, from.Add(24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	c.JSON(http.StatusOK, gin.H{
		"day":   from.Format("2006-01-02"),
		"count": len(orders),
		"data":  orders,
	})
}

// GetPositions returns the positions opened on a trading day.
func (h *Handler) GetPositions(c *gin.Context) {
	from, ok := dayParam(c)
	if !ok {
		return
	}

	positions, err := h.journal.PositionsBetween(c.Request.Context(), from, from.Add(24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}

	c.JSON(http.StatusOK, gin.H{
		"day":   from.Format("2006-01-02"),
		"count": len(positions),
		"data":  positions,
	})
}

// GetSummary returns the day summary built from the journal.
func (h *Handler) GetSummary(c *gin.Context) {
	from, ok := dayParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	to := from.Add(24 * time.Hour)

	positions, err := h.journal.PositionsBetween(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	orders, err := h.journal.OrdersBetween(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": store.Summarize(from, positions, orders)})
}

// Start requests the run switch on.
func (h *Handler) Start(c *gin.Context) {
	h.ctl.Start()
	c.JSON(http.StatusAccepted, gin.H{"requested": "start"})
}

// Stop requests the run switch off.
func (h *Handler) Stop(c *gin.Context) {
	h.ctl.Stop()
	c.JSON(http.StatusAccepted, gin.H{"requested": "stop"})
}

// SquareOff requests closing every Active position.
func (h *Handler) SquareOff(c *gin.Context) {
	h.ctl.RequestSquareOff()
	c.JSON(http.StatusAccepted, gin.H{"requested": "squareoff"})
}

// dayParam parses ?day= in IST and writes a 400 when it is malformed.
func dayParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("day")
	if raw == "" {
		return utils.TradingDay(utils.Now()), true
	}
	day, err := time.ParseInLocation("2006-01-02", raw, utils.IndiaLocation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD", "day": raw})
		return time.Time{}, false
	}
	return day, true
}
