package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy.com/quiz-contest/internal/ledger"
)

type amountReq struct {
	Amount float64 `json:"amount" binding:"required"`
}

type endReq struct {
	TransactionID string  `json:"transactionId" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	IsSuccessful  *bool   `json:"isSuccessful" binding:"required"`
	TrackingID    *string `json:"trackingId"`
	ErrorReason   *string `json:"errorReason"`
}

func (r endReq) input() ledger.EndInput {
	return ledger.EndInput{
		TransactionID: r.TransactionID,
		Amount:        r.Amount,
		IsSuccessful:  *r.IsSuccessful,
		TrackingID:    r.TrackingID,
		ErrorReason:   r.ErrorReason,
	}
}

// POST /api/v1/wallet/payContest
func PayContest(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contestReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "contestId is required")
			return
		}
		record, err := d.Ledger.PayForContest(c.Request.Context(), currentUser(c), req.ContestID)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": record})
	}
}

// POST /api/v1/wallet/addBalanceInit
func AddBalanceInit(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req amountReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "amount is required")
			return
		}
		res, err := d.Ledger.AddBalanceInit(c.Request.Context(), currentUser(c), req.Amount)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transactionId": res.TransactionID, "appUpiId": res.AppUpiID})
	}
}

// POST /api/v1/wallet/addBalanceEnd
func AddBalanceEnd(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req endReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "transactionId, amount and isSuccessful are required")
			return
		}
		record, err := d.Ledger.AddBalanceEnd(c.Request.Context(), currentUser(c), req.input())
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": record})
	}
}

// POST /api/v1/wallet/withdrawInit
func WithdrawInit(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req amountReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "amount is required")
			return
		}
		res, err := d.Ledger.WithdrawInit(c.Request.Context(), currentUser(c), req.Amount)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transactionId": res.TransactionID})
	}
}

// POST /api/v1/wallet/withdrawEnd
func WithdrawEnd(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req endReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "transactionId, amount and isSuccessful are required")
			return
		}
		record, err := d.Ledger.WithdrawEnd(c.Request.Context(), currentUser(c), req.input())
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": record})
	}
}

// GET /api/v1/wallet/balance
func Balance(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		balance, err := d.Ledger.Balance(c.Request.Context(), currentUser(c))
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "balance": balance})
	}
}

// GET /api/v1/wallet/transactions?limit=&offset=
func ListTransactions(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		items, total, err := d.Ledger.ListTransactions(c.Request.Context(), currentUser(c), limit, offset)
		if err != nil {
			respondError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transactions": items, "total": total})
	}
}
