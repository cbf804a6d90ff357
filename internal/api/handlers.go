// Package api exposes practice sessions over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/prediction"
	"tradetrainer/internal/program"
	"tradetrainer/internal/session"
	"tradetrainer/internal/storage"
)

// Sessions resolves the session of a trader.
type Sessions interface {
	Get(ctx context.Context, trader string) (*session.Session, error)
}

// Performance reads computed trader performance.
type Performance interface {
	Latest(ctx context.Context, trader string) (*domain.TraderPerformance, error)
}

// Handler serves the session API.
type Handler struct {
	sessions    Sessions
	performance Performance
	log         *logrus.Entry
}

// NewHandler creates a Handler. performance may be nil.
func NewHandler(sessions Sessions, performance Performance, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		sessions:    sessions,
		performance: performance,
		log:         logger.WithField("component", "api"),
	}
}

// RegisterRoutes registers session routes under router.
func RegisterRoutes(router *gin.RouterGroup, h *Handler) {
	traders := router.Group("/traders/:trader")
	{
		traders.GET("/session", h.GetState)
		traders.POST("/session/load", h.LoadExercise)
		traders.POST("/session/validate", h.SubmitValidation)
		traders.POST("/session/skip", h.Skip)
		traders.GET("/session/price", h.MapPercent)
		traders.GET("/session/percent", h.MapPrice)
		traders.GET("/history", h.GetHistory)
		traders.GET("/performance", h.GetPerformance)
		traders.POST("/account/reload", h.ReloadTrader)
	}
}

// session resolves the trader's session or writes the error response.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("trader"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

// GET /api/v1/traders/:trader/session
func (h *Handler) GetState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newStateResponse(s.State()))
}

// POST /api/v1/traders/:trader/session/load
func (h *Handler) LoadExercise(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.LoadExercise(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStateResponse(s.State()))
}

// ValidateRequest carries either a percentage or a chart price.
type ValidateRequest struct {
	Percent *float64 `json:"percent"`
	Price   *float64 `json:"price"`
}

// POST /api/v1/traders/:trader/session/validate
func (h *Handler) SubmitValidation(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if (req.Percent == nil) == (req.Price == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of percent or price is required"})
		return
	}

	s, ok := h.session(c)
	if !ok {
		return
	}

	var percent float64
	if req.Percent != nil {
		percent = *req.Percent
	} else {
		bar := s.State().Bar
		if bar == nil {
			h.fail(c, session.ErrNoExercise)
			return
		}
		price, err := prediction.ValidatePrice(*req.Price)
		if err != nil {
			h.fail(c, err)
			return
		}
		percent = prediction.PriceToValidation(price, *bar)
	}
	percent, err := prediction.ValidatePercent(percent)
	if err != nil {
		h.fail(c, err)
		return
	}

	item, err := s.SubmitValidation(c.Request.Context(), percent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": newHistoryItem(item)})
}

// POST /api/v1/traders/:trader/session/skip
func (h *Handler) Skip(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	item, err := s.Skip(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	var body *historyItem
	if item != nil {
		body = newHistoryItem(item)
	}
	c.JSON(http.StatusOK, gin.H{"item": body})
}

// GET /api/v1/traders/:trader/session/price?percent=
func (h *Handler) MapPercent(c *gin.Context) {
	percent, err := strconv.ParseFloat(c.Query("percent"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid percent parameter"})
		return
	}
	bar, ok := h.currentBar(c)
	if !ok {
		return
	}
	if percent, err = prediction.ValidatePercent(percent); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"percent": percent, "price": prediction.DisplayPrice(percent, bar)})
}

// GET /api/v1/traders/:trader/session/percent?price=
func (h *Handler) MapPrice(c *gin.Context) {
	price, err := strconv.ParseFloat(c.Query("price"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price parameter"})
		return
	}
	if price, err = prediction.ValidatePrice(price); err != nil {
		h.fail(c, err)
		return
	}
	bar, ok := h.currentBar(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price, "percent": prediction.PriceToValidation(price, bar)})
}

func (h *Handler) currentBar(c *gin.Context) (domain.PredictionBar, bool) {
	s, ok := h.session(c)
	if !ok {
		return domain.PredictionBar{}, false
	}
	bar := s.State().Bar
	if bar == nil {
		h.fail(c, session.ErrNoExercise)
		return domain.PredictionBar{}, false
	}
	return *bar, true
}

// GET /api/v1/traders/:trader/history
func (h *Handler) GetHistory(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap := s.State()
	items := make([]*historyItem, 0, len(snap.History))
	for _, item := range snap.History {
		items = append(items, newHistoryItem(item))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GET /api/v1/traders/:trader/performance
func (h *Handler) GetPerformance(c *gin.Context) {
	if h.performance == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "performance tracking disabled"})
		return
	}
	perf, err := h.performance.Latest(c.Request.Context(), c.Param("trader"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPerformanceResponse(perf))
}

// POST /api/v1/traders/:trader/account/reload
func (h *Handler) ReloadTrader(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	t, err := s.ReloadTrader(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTraderResponse(t))
}

// fail maps session and storage errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoTrader),
		errors.Is(err, session.ErrNonFinite),
		errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoExercise),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrSubmissionInFlight),
		errors.Is(err, session.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoEligibleExercise),
		errors.Is(err, program.ErrAccountNotFound),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrContentUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
