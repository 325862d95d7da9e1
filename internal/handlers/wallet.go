// Package handlers exposes the wallet over HTTP. Every route requires a
// bearer token; the numeric subject claim selects the wallet.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackfin/paperbroker/internal/ledger"
	"github.com/stackfin/paperbroker/internal/money"
	"github.com/stackfin/paperbroker/internal/quotes"
	"github.com/stackfin/paperbroker/libs/auth"
	"github.com/stackfin/paperbroker/libs/httpmiddleware"
)

type WalletHandler struct {
	Executor  *ledger.Executor
	Valuer    *ledger.Valuer
	Store     ledger.Store
	Source    quotes.Source
	Logger    *slog.Logger
	JWTSecret []byte
}

func NewWalletHandler(exec *ledger.Executor, valuer *ledger.Valuer, store ledger.Store, source quotes.Source, logger *slog.Logger, jwtSecret string) *WalletHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletHandler{
		Executor:  exec,
		Valuer:    valuer,
		Store:     store,
		Source:    source,
		Logger:    logger,
		JWTSecret: []byte(jwtSecret),
	}
}

type tradeRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

type tradeResponse struct {
	TransactionID int64  `json:"transaction_id"`
	WalletID      int64  `json:"wallet_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	PriceCents    int64  `json:"price_cents"`
	TotalCents    int64  `json:"total_cents"`
	CashCents     int64  `json:"cash_cents"`
	Cash          string `json:"cash"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *WalletHandler) RegisterRoutes(r gin.IRouter) {
	wallet := r.Group("/wallet", auth.Middleware(h.JWTSecret))
	wallet.POST("/buy", h.Buy)
	wallet.POST("/sell", h.Sell)
	wallet.GET("/value", h.Value)
	wallet.GET("/transactions", h.Transactions)
	wallet.GET("/live_price/:ticker", h.LivePrice)
}

func (h *WalletHandler) Buy(c *gin.Context) {
	h.trade(c, ledger.SideBuy)
}

func (h *WalletHandler) Sell(c *gin.Context) {
	h.trade(c, ledger.SideSell)
}

func (h *WalletHandler) trade(c *gin.Context, side ledger.Side) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing token"})
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "ticker and quantity required"})
		return
	}

	quantity, err := money.ParseQuantity(req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_AMOUNT", Message: err.Error()})
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	ctx := ledger.ContextWithCorrelationID(c.Request.Context(), httpmiddleware.RequestIDFrom(c))
	var result ledger.TradeResult
	if side == ledger.SideBuy {
		result, err = h.Executor.Buy(ctx, userID, ticker, quantity)
	} else {
		result, err = h.Executor.Sell(ctx, userID, ticker, quantity)
	}
	if err != nil {
		h.writeTradeError(c, err)
		return
	}

	tx := result.Transaction
	c.JSON(http.StatusOK, tradeResponse{
		TransactionID: tx.ID,
		WalletID:      tx.WalletID,
		Ticker:        tx.Ticker,
		Side:          string(tx.Side),
		Quantity:      tx.Quantity.String(),
		PriceCents:    tx.PriceCents,
		TotalCents:    tx.TotalCents,
		CashCents:     result.CashCents,
		Cash:          money.CentsToDollars(result.CashCents).StringFixed(2),
	})
}

func (h *WalletHandler) writeTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_AMOUNT", Message: err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "INSUFFICIENT_FUNDS", Message: "not enough cash"})
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: "INSUFFICIENT_HOLDINGS", Message: "not enough shares"})
	case errors.Is(err, quotes.ErrPriceUnavailable):
		c.JSON(http.StatusBadGateway, errorResponse{Code: "PRICE_UNAVAILABLE", Message: "price unavailable"})
	case errors.Is(err, ledger.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: "WALLET_BUSY", Message: "wallet busy, retry shortly"})
	default:
		h.Logger.Error("trade failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}

type valueResponse struct {
	WalletID  int64          `json:"wallet_id"`
	CashCents int64          `json:"cash_cents"`
	Cash      string         `json:"cash"`
	Holdings  []holdingValue `json:"holdings"`
	Total     string         `json:"total"`
}

type holdingValue struct {
	Ticker      string `json:"ticker"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	MarketValue string `json:"market_value"`
}

func (h *WalletHandler) Value(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing token"})
		return
	}

	valuation, err := h.Valuer.ValueWallet(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
			c.JSON(http.StatusNotFound, errorResponse{Code: "WALLET_NOT_FOUND", Message: "no wallet yet; place a trade first"})
		case errors.Is(err, quotes.ErrPriceUnavailable):
			c.JSON(http.StatusBadGateway, errorResponse{Code: "PRICE_UNAVAILABLE", Message: "price unavailable"})
		default:
			h.Logger.Error("valuation failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		}
		return
	}

	resp := valueResponse{
		WalletID:  valuation.WalletID,
		CashCents: valuation.CashCents,
		Cash:      valuation.Cash.StringFixed(2),
		Holdings:  make([]holdingValue, 0, len(valuation.Holdings)),
		Total:     valuation.Total.StringFixed(2),
	}
	for _, hv := range valuation.Holdings {
		resp.Holdings = append(resp.Holdings, holdingValue{
			Ticker:      hv.Ticker,
			Quantity:    hv.Quantity.String(),
			Price:       hv.Price.String(),
			MarketValue: hv.MarketValue.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing token"})
		return
	}

	wallet, err := h.Store.WalletByUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusOK, gin.H{"transactions": []ledger.Transaction{}})
			return
		}
		h.Logger.Error("wallet lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	txs, err := h.Store.Transactions(c.Request.Context(), wallet.ID, limit)
	if err != nil {
		h.Logger.Error("transaction list failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *WalletHandler) LivePrice(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	price, err := h.Source.GetPrice(c.Request.Context(), ticker)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Code: "PRICE_UNAVAILABLE", Message: "price unavailable"})
		return
	}

	cents, err := money.ToCents(price)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Code: "PRICE_UNAVAILABLE", Message: "price unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker":      ticker,
		"price":       price.String(),
		"price_cents": cents,
	})
}
