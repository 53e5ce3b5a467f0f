package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/service/credit"
	"github.com/gin-gonic/gin"
)

type CreditHandler struct {
	service credit.LedgerUseCase
}

type creditBalanceResponse struct {
	UserID  int64  `json:"user_id"`
	Balance string `json:"balance"`
}

type creditTransactionResponse struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	ReferenceID   int64  `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
	CreatedAt     string `json:"created_at"`
}

type grantCreditRequest struct {
	Amount        string `json:"amount"`
	ReferenceID   int64  `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
}

func NewCreditHandler(service credit.LedgerUseCase) *CreditHandler {
	return &CreditHandler{service: service}
}

func (h *CreditHandler) Register(router *gin.RouterGroup) {
	router.GET("/:user_id", h.balance)
	router.GET("/:user_id/transactions", h.transactions)
	router.POST("/:user_id/grants", h.grant)
}

func (h *CreditHandler) balance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id must be numeric"})
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, creditBalanceResponse{UserID: userID, Balance: balance.String()})
}

func (h *CreditHandler) transactions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id must be numeric"})
		return
	}
	txs, err := h.service.Transactions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]creditTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, creditTransactionResponse{
			ID:            tx.ID,
			Type:          string(tx.Type),
			Amount:        tx.Amount.String(),
			BalanceBefore: tx.BalanceBefore.String(),
			BalanceAfter:  tx.BalanceAfter.String(),
			ReferenceID:   tx.ReferenceID,
			ReferenceType: tx.ReferenceType,
			CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

func (h *CreditHandler) grant(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id must be numeric"})
		return
	}
	var req grantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount: " + err.Error()})
		return
	}

	tx, err := h.service.Adjust(c.Request.Context(), userID, amount, domain.CreditTxGrant, req.ReferenceID, req.ReferenceType)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, creditTransactionResponse{
		ID:            tx.ID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		BalanceBefore: tx.BalanceBefore.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		ReferenceID:   tx.ReferenceID,
		ReferenceType: tx.ReferenceType,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	})
}
