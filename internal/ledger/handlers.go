package ledger

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orjancarlsen/stock-price-prediction/internal/types"
	"github.com/orjancarlsen/stock-price-prediction/pkg/response"
)

// GinHandlers contains the HTTP handlers over the ledger. The portfolio
// endpoints are read-only; the cash endpoints sit on the internal route
// group and record external cash events through the core's own entry
// points.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PositionsHandler handles GET requests for current positions.
func (h *GinHandlers) PositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := h.service.GetPositions()
		response.Handle(c, positions, err)
	}
}

// TransactionsHandler handles GET requests for recent transactions.
// Query parameter: limit (default 100)
func (h *GinHandlers) TransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				response.BadRequest(c, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		txns, err := h.service.GetTransactions(limit)
		response.Handle(c, txns, err)
	}
}

// OrdersHandler handles GET requests for orders, any status.
// Query parameter: status (optional: PENDING, EXECUTED, CANCELED)
func (h *GinHandlers) OrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch status {
		case "", types.OrderPending, types.OrderExecuted, types.OrderCanceled:
		default:
			response.BadRequest(c, "unknown order status")
			return
		}

		orders, err := h.service.GetOrders(status)
		response.Handle(c, orders, err)
	}
}

// PortfolioValuesHandler handles GET requests for the daily equity history.
func (h *GinHandlers) PortfolioValuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		values, err := h.service.GetPortfolioValues()
		response.Handle(c, values, err)
	}
}

type cashEventRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

type dividendRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	PerShare float64 `json:"per_share" binding:"required"`
}

// DepositHandler handles POST requests recording a cash deposit.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cashEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.Deposit(req.Amount, time.Now()); err != nil {
			if errors.Is(err, ErrInvalidAmount) {
				response.BadRequest(c, err.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "deposit recorded"})
	}
}

// WithdrawHandler handles POST requests recording a cash withdrawal.
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cashEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.Withdraw(req.Amount, time.Now())
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			response.Conflict(c, err.Error())
		case err != nil:
			response.Handle(c, nil, err)
		default:
			response.Success(c, gin.H{"message": "withdrawal recorded"})
		}
	}
}

// DividendHandler handles POST requests recording a dividend payout for a
// held symbol.
func (h *GinHandlers) DividendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dividendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.Dividend(req.Symbol, req.PerShare, time.Now())
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrPositionNotFound):
			response.NotFound(c, "no shares of symbol held")
		case err != nil:
			response.Handle(c, nil, err)
		default:
			response.Success(c, gin.H{"message": "dividend recorded"})
		}
	}
}
