package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"folio/internal/database"
	"folio/internal/ledger"
	"folio/internal/models"
	"folio/internal/quotes"
	"folio/internal/reports"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	engine  *ledger.Engine
	repo    *database.Repo
	quotes  *quotes.Service
	updater *quotes.Updater
	reports *reports.Generator
	log     *logrus.Logger
}

func NewHandler(engine *ledger.Engine, repo *database.Repo, qs *quotes.Service, up *quotes.Updater, gen *reports.Generator, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, repo: repo, quotes: qs, updater: up, reports: gen, log: log}
}

// Register wires every route onto the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/snapshot/:userId", h.GetSnapshot)
	r.GET("/summary/:userId", h.GetSummary)
	r.GET("/allocation/:userId", h.GetAllocation)
	r.GET("/cagr/:userId", h.GetCAGR)

	r.POST("/capital/deposit", h.Deposit)
	r.POST("/capital/withdraw", h.Withdraw)
	r.GET("/capital/recompute/:userId", h.PreviewRecompute)
	r.POST("/capital/recompute/:userId", h.CommitRecompute)

	r.POST("/investments", h.CreateInvestment)
	r.POST("/investments/:id/sell", h.Sell)
	r.PATCH("/investments/:id", h.EditInvestment)
	r.PUT("/investments/:id/price", h.UpdatePrice)
	r.DELETE("/investments/:id", h.DeleteInvestment)
	r.DELETE("/simulations/:id", h.DeleteSimulation)
	r.POST("/transactions/:id/undo-sell", h.UndoSell)

	r.GET("/reports/:userId", h.ListReports)
	r.POST("/reports/backfill/:userId", h.BackfillReports)
	r.POST("/prices/refresh/:userId", h.RefreshPrices)
	r.GET("/quote", h.GetQuote)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ledger.ErrNonPositiveAmount),
		errors.Is(err, ledger.ErrInsufficientQuantity),
		errors.Is(err, ledger.ErrNotActive),
		errors.Is(err, ledger.ErrNotSell),
		errors.Is(err, ledger.ErrSimulation),
		errors.Is(err, ledger.ErrNotSimulation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func (h *Handler) GetSnapshot(c *gin.Context) {
	snap, err := h.engine.Refresh(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) GetSummary(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.Summarize(snap))
}

func (h *Handler) GetAllocation(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.DefaultQuery("by", "type") == "symbol" {
		c.JSON(http.StatusOK, ledger.AllocationBySymbol(snap.Investments))
		return
	}
	c.JSON(http.StatusOK, ledger.AllocationByType(snap.Investments))
}

func (h *Handler) GetCAGR(c *gin.Context) {
	snap, err := h.engine.Snapshot(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	now := time.Now().UTC()
	type lotCAGR struct {
		InvestmentID string   `json:"investmentId"`
		Symbol       string   `json:"symbol"`
		Days         int      `json:"days"`
		CAGR         *float64 `json:"cagr"` // nil renders as a dash
	}
	lots := []lotCAGR{}
	for _, inv := range snap.Investments {
		if inv.Status != models.StatusActive {
			continue
		}
		entry := lotCAGR{InvestmentID: inv.ID, Symbol: inv.Symbol}
		if v, days, ok := ledger.LotCAGR(inv, now); ok {
			entry.CAGR = &v
			entry.Days = days
		} else {
			entry.Days = days
		}
		lots = append(lots, entry)
	}
	resp := gin.H{"lots": lots}
	if v, ok := ledger.PortfolioCAGR(snap, now); ok {
		resp["portfolio"] = v
	} else {
		resp["portfolio"] = nil
	}
	c.JSON(http.StatusOK, resp)
}

type capitalRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) Deposit(c *gin.Context)  { h.capitalMove(c, h.engine.Deposit) }
func (h *Handler) Withdraw(c *gin.Context) { h.capitalMove(c, h.engine.Withdraw) }

func (h *Handler) capitalMove(c *gin.Context, op func(ctx context.Context, userID string, amount decimal.Decimal, date, description string) error) {
	var req capitalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format"})
		return
	}
	if err := h.repo.EnsureProfileExists(c.Request.Context(), req.UserID, ""); err != nil {
		h.fail(c, err)
		return
	}
	if err := op(c.Request.Context(), req.UserID, amount, req.Date, req.Description); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createInvestmentRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	Name          string `json:"name"`
	Type          string `json:"type" binding:"required"`
	Quantity      string `json:"quantity" binding:"required"`
	BuyPrice      string `json:"buy_price" binding:"required"`
	TotalInvested string `json:"total_invested" binding:"required"`
	PurchaseDate  string `json:"purchase_date" binding:"required"`
	Simulation    bool   `json:"simulation"`
	Notes         string `json:"notes"`
	OriginalPrice string `json:"original_price"`
	ExchangeRate  string `json:"exchange_rate"`
}

func (h *Handler) CreateInvestment(c *gin.Context) {
	var req createInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := ledger.NewInvestment{
		Symbol:       req.Symbol,
		Name:         req.Name,
		Type:         models.InvestmentType(req.Type),
		PurchaseDate: req.PurchaseDate,
		Simulation:   req.Simulation,
		Notes:        req.Notes,
	}
	var err error
	if in.Quantity, err = parseAmount(req.Quantity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity format"})
		return
	}
	if in.BuyPrice, err = parseAmount(req.BuyPrice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buy_price format"})
		return
	}
	if in.TotalInvested, err = parseAmount(req.TotalInvested); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_invested format"})
		return
	}
	if req.OriginalPrice != "" {
		d, err := parseAmount(req.OriginalPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid original_price format"})
			return
		}
		in.OriginalPrice = &d
	}
	if req.ExchangeRate != "" {
		d, err := parseAmount(req.ExchangeRate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exchange_rate format"})
			return
		}
		in.ExchangeRate = &d
	}

	if err := h.repo.EnsureProfileExists(c.Request.Context(), req.UserID, ""); err != nil {
		h.fail(c, err)
		return
	}
	id, err := h.engine.AddInvestment(c.Request.Context(), req.UserID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"investment_id": id})
}

type sellRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Price    string `json:"price" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
	Date     string `json:"date" binding:"required"`
}

func (h *Handler) Sell(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}
	quantity, err := parseAmount(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity format"})
		return
	}
	if err := h.engine.Sell(c.Request.Context(), req.UserID, c.Param("id"), price, quantity, req.Date); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sold"})
}

type editInvestmentRequest struct {
	UserID        string  `json:"user_id" binding:"required"`
	Name          *string `json:"name"`
	Type          *string `json:"type"`
	PurchaseDate  *string `json:"purchase_date"`
	Quantity      *string `json:"quantity"`
	BuyPrice      *string `json:"buy_price"`
	TotalInvested *string `json:"total_invested"`
	Notes         *string `json:"notes"`
}

func (h *Handler) EditInvestment(c *gin.Context) {
	var req editInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch := ledger.InvestmentPatch{
		Name:         req.Name,
		PurchaseDate: req.PurchaseDate,
		Notes:        req.Notes,
	}
	if req.Type != nil {
		t := models.InvestmentType(*req.Type)
		patch.Type = &t
	}
	var err error
	if patch.Quantity, err = optionalAmount(req.Quantity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity format"})
		return
	}
	if patch.BuyPrice, err = optionalAmount(req.BuyPrice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buy_price format"})
		return
	}
	if patch.TotalInvested, err = optionalAmount(req.TotalInvested); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_invested format"})
		return
	}
	if err := h.engine.EditInvestment(c.Request.Context(), req.UserID, c.Param("id"), patch); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func optionalAmount(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type priceRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Price  string `json:"price" binding:"required"`
}

func (h *Handler) UpdatePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}
	if err := h.engine.UpdateCurrentPrice(c.Request.Context(), req.UserID, c.Param("id"), price); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) DeleteInvestment(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if err := h.engine.DeleteInvestment(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) DeleteSimulation(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if err := h.engine.DeleteSimulation(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type undoSellRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) UndoSell(c *gin.Context) {
	var req undoSellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.UndoSell(c.Request.Context(), req.UserID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reversed"})
}

func (h *Handler) PreviewRecompute(c *gin.Context) {
	breakdown, err := h.engine.RecomputeCapital(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (h *Handler) CommitRecompute(c *gin.Context) {
	breakdown, err := h.engine.CommitRecomputedCapital(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (h *Handler) ListReports(c *gin.Context) {
	reps, err := h.repo.ListDailyReports(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reps)
}

func (h *Handler) BackfillReports(c *gin.Context) {
	n, err := h.reports.Backfill(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": n})
}

func (h *Handler) RefreshPrices(c *gin.Context) {
	n, err := h.updater.RefreshUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) GetQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	typ := models.InvestmentType(c.DefaultQuery("type", string(models.TypeStock)))
	c.JSON(http.StatusOK, h.quotes.GetQuote(c.Request.Context(), symbol, typ))
}
