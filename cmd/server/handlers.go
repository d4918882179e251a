package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"backsim/services/arrowstream"
	"backsim/services/engine"
)

// createRunRequest is the JSON body for POST /api/backtests. Durations come
// in as Go duration strings ("1h", "30m"), timestamps as RFC 3339.
type createRunRequest struct {
	Symbol              string            `json:"symbol" binding:"required"`
	Strategy            string            `json:"strategy" binding:"required"`
	StrategyParams      map[string]string `json:"strategy_params"`
	From                time.Time         `json:"from" binding:"required"`
	To                  time.Time         `json:"to" binding:"required"`
	SignalTimeframe     string            `json:"signal_timeframe"`
	FillPolicy          string            `json:"fill_policy"`
	PricePath           string            `json:"price_path"`
	EnableSetupTrigger  bool              `json:"enable_setup_trigger"`
	SetupValidityWindow string            `json:"setup_validity_window"`
	Leverage            float64           `json:"leverage"`
	InitialCapital      float64           `json:"initial_capital" binding:"required"`
	Quantity            float64           `json:"quantity" binding:"required"`
	MakerFee            float64           `json:"maker_fee"`
	TakerFee            float64           `json:"taker_fee"`
	FundingRate         float64           `json:"funding_rate"`
	SlippagePercent     float64           `json:"slippage_percent"`
}

func (req *createRunRequest) toConfig() (engine.Config, error) {
	cfg := engine.Config{
		Symbol:             req.Symbol,
		Strategy:           req.Strategy,
		StrategyParams:     req.StrategyParams,
		EnableSetupTrigger: req.EnableSetupTrigger,
		Leverage:           req.Leverage,
		InitialCapital:     req.InitialCapital,
		Quantity:           req.Quantity,
		MakerFee:           req.MakerFee,
		TakerFee:           req.TakerFee,
		FundingRate:        req.FundingRate,
		SlippagePercent:    req.SlippagePercent,
	}
	if req.SignalTimeframe != "" {
		tf, err := time.ParseDuration(req.SignalTimeframe)
		if err != nil {
			return cfg, fmt.Errorf("signal_timeframe: %w", err)
		}
		cfg.SignalTimeframe = tf
	}
	if req.SetupValidityWindow != "" {
		w, err := time.ParseDuration(req.SetupValidityWindow)
		if err != nil {
			return cfg, fmt.Errorf("setup_validity_window: %w", err)
		}
		cfg.SetupValidityWindow = w
	}
	if req.FillPolicy != "" {
		p, err := engine.ParseFillPolicy(req.FillPolicy)
		if err != nil {
			return cfg, err
		}
		cfg.FillPolicy = p
	}
	if req.PricePath != "" {
		p, err := engine.ParsePricePath(req.PricePath)
		if err != nil {
			return cfg, err
		}
		cfg.PricePath = p
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func newRouter(r *runner, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/backtests", func(c *gin.Context) { handleCreate(c, r) })
		api.GET("/backtests/:id", func(c *gin.Context) { handleStatus(c, r) })
		api.DELETE("/backtests/:id", func(c *gin.Context) { handleCancel(c, r) })
		api.GET("/backtests/:id/trades", func(c *gin.Context) { handleTrades(c, r) })
		api.GET("/backtests/:id/trades.arrow", func(c *gin.Context) { handleTradesArrow(c, r) })
		api.GET("/backtests/:id/events", func(c *gin.Context) { handleEvents(c, r) })
		api.GET("/backtests/:id/trades/:trade_id/replay", func(c *gin.Context) { handleReplay(c, r) })
		api.GET("/backtests/:id/summary", func(c *gin.Context) { handleSummary(c, r) })
		api.GET("/backtests/:id/equity", func(c *gin.Context) { handleEquity(c, r) })
	}
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func handleCreate(c *gin.Context, r *runner) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.To.After(req.From) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}
	cfg, err := req.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := r.submit(cfg, req.From, req.To)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "running"})
}

func handleStatus(c *gin.Context, r *runner) {
	state, ok := r.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	resp := gin.H{
		"id":           state.ID,
		"status":       state.Status,
		"submitted_at": state.SubmittedAt,
	}
	if state.Error != "" {
		resp["error"] = state.Error
	}
	if state.Result != nil {
		resp["manifest"] = state.Result.Manifest
	}
	c.JSON(http.StatusOK, resp)
}

func handleCancel(c *gin.Context, r *runner) {
	if !r.cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceling"})
}

// finishedResult returns the result if the run reached a terminal state.
func finishedResult(c *gin.Context, r *runner) *engine.Result {
	state, ok := r.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return nil
	}
	if state.Status == "running" {
		c.JSON(http.StatusConflict, gin.H{"error": "run still in progress"})
		return nil
	}
	if state.Result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result", "status": state.Status})
		return nil
	}
	return state.Result
}

func handleTrades(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": res.Trades})
}

func handleTradesArrow(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	buf, err := arrowstream.EncodeTrades(res.Trades)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", buf)
}

func handleEvents(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	events := res.Events
	if t := c.Query("type"); t != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.Type == engine.EventType(t) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if id := c.Query("trade_id"); id != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.TradeID == id {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleReplay rebuilds one trade purely from the event log, proving the
// stored events are sufficient to reconstruct the trade record.
func handleReplay(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	log := engine.NewEventLog()
	for _, e := range res.Events {
		log.Append(e)
	}
	trade, err := engine.ReplayTrade(log, c.Param("trade_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

func handleSummary(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": res.Summary, "manifest": res.Manifest})
}

func handleEquity(c *gin.Context, r *runner) {
	res := finishedResult(c, r)
	if res == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity_curve": res.EquityCurve})
}
