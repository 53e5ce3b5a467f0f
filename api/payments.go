package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/service/payment"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type createPaymentRequest struct {
	UserID          int64                `json:"user_id"`
	BookingID       *int64               `json:"booking_id"`
	Category        string               `json:"category"`
	DurationMinutes int                  `json:"duration_minutes"`
	StartTime       string               `json:"start_time"`
	LessonPrice     string               `json:"lesson_price"`
	AdminFee        string               `json:"admin_fee"`
	DiscountAmount  string               `json:"discount_amount"`
	VoucherDiscount string               `json:"voucher_discount"`
	Items           []paymentItemRequest `json:"items"`
}

type paymentItemRequest struct {
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Refundable bool   `json:"refundable"`
}

type cancelPaymentRequest struct {
	ActorRole          string `json:"actor_role"`
	Reason             string `json:"reason"`
	RequestedChargePct *int   `json:"requested_charge_pct"`
}

type paymentResponse struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	BookingID   *int64 `json:"booking_id,omitempty"`
	TotalAmount string `json:"total_amount"`
	CreditUsed  string `json:"credit_used"`
	Status      string `json:"status"`
	PaymentURL  string `json:"payment_url,omitempty"`
}

type webhookRequest struct {
	TransactionID string `json:"transaction_id"`
	State         string `json:"state"`
	Timestamp     string `json:"timestamp"`
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/cancel", h.cancel)
	// Per-payment callback URL handed to the gateway; the notification
	// itself is matched by transaction id, not the path.
	router.POST("/:id/webhook", h.webhook)
}

// RegisterWebhook mounts the shared gateway callback. It lives outside
// the API group so the gateway needs no auth context.
func (h *PaymentHandler) RegisterWebhook(router *gin.RouterGroup) {
	router.POST("/gateway", h.webhook)
}

func (h *PaymentHandler) create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := payment.CreateInput{
		UserID:          req.UserID,
		BookingID:       req.BookingID,
		CategoryCode:    req.Category,
		DurationMinutes: req.DurationMinutes,
	}
	if req.StartTime != "" {
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
			return
		}
		input.StartTime = start
	}

	var err error
	if input.LessonPrice, err = parseAmount(req.LessonPrice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lesson_price: " + err.Error()})
		return
	}
	if input.AdminFee, err = parseAmount(req.AdminFee); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin_fee: " + err.Error()})
		return
	}
	if input.DiscountAmount, err = parseAmount(req.DiscountAmount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "discount_amount: " + err.Error()})
		return
	}
	if input.VoucherDiscount, err = parseAmount(req.VoucherDiscount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voucher_discount: " + err.Error()})
		return
	}
	for _, item := range req.Items {
		amount, err := parseAmount(item.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item " + item.Name + ": " + err.Error()})
			return
		}
		input.Items = append(input.Items, domain.PaymentItem{
			Name:       item.Name,
			Amount:     amount,
			Refundable: item.Refundable,
		})
	}

	res, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	resp := toPaymentResponse(res.Payment)
	resp.PaymentURL = res.PaymentURL
	c.JSON(http.StatusCreated, resp)
}

func (h *PaymentHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment id must be numeric"})
		return
	}
	p, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment id must be numeric"})
		return
	}
	var req cancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	p, err := h.service.Cancel(c.Request.Context(), payment.CancelInput{
		PaymentID:          id,
		ActorRole:          req.ActorRole,
		Reason:             req.Reason,
		RequestedChargePct: req.RequestedChargePct,
	})
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// webhook always acknowledges with 200. The gateway retries on anything
// else, and the reconciliation rule already makes redelivery harmless, so
// a failed delivery is logged and absorbed rather than bounced.
func (h *PaymentHandler) webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("malformed webhook payload", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	n := domain.WebhookNotification{
		TransactionID: req.TransactionID,
		State:         req.State,
	}
	if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
		n.Timestamp = ts
	}

	if err := h.service.HandleNotification(c.Request.Context(), n); err != nil {
		slog.Error("webhook processing failed", "transaction_id", req.TransactionID, "state", req.State, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		BookingID:   p.BookingID,
		TotalAmount: p.TotalAmount.String(),
		CreditUsed:  p.CreditUsed.String(),
		Status:      string(p.Status),
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
