package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/avdeev-dev/slotbook/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service reservation.ReservationUseCase
}

type holdRequest struct {
	StaffID         int64  `json:"staff_id"`
	LocationID      int64  `json:"location_id"`
	Category        string `json:"category"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	SessionID       string `json:"session_id"`
}

type holdResponse struct {
	SessionID string `json:"session_id"`
	StaffID   int64  `json:"staff_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	HeldUntil string `json:"held_until"`
}

type confirmRequest struct {
	SessionID       string `json:"session_id"`
	UserID          int64  `json:"user_id"`
	StaffID         int64  `json:"staff_id"`
	LocationID      int64  `json:"location_id"`
	Category        string `json:"category"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type bookingResponse struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	StaffID         int64  `json:"staff_id"`
	LocationID      int64  `json:"location_id"`
	Category        string `json:"category"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
}

func NewBookingHandler(service reservation.ReservationUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/hold", h.hold)
	router.DELETE("/hold/:session_id", h.release)
	router.POST("/", h.confirm)
	router.DELETE("/:id", h.cancel)
}

func (h *BookingHandler) hold(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
		return
	}
	if req.DurationMinutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes must be positive"})
		return
	}

	startMin := start.Hour()*60 + start.Minute()
	slot := domain.AvailabilitySlot{
		StaffID:         req.StaffID,
		LocationID:      req.LocationID,
		CategoryCode:    req.Category,
		Date:            start,
		StartMin:        startMin,
		EndMin:          startMin + req.DurationMinutes,
		DurationMinutes: req.DurationMinutes,
	}

	held, err := h.service.Hold(c.Request.Context(), slot, req.SessionID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, holdResponse{
		SessionID: held.SessionID,
		StaffID:   held.StaffID,
		StartTime: held.StartTime.Format(time.RFC3339),
		EndTime:   held.EndTime.Format(time.RFC3339),
		HeldUntil: held.HeldUntil.Format(time.RFC3339),
	})
}

func (h *BookingHandler) release(c *gin.Context) {
	if err := h.service.Release(c.Request.Context(), c.Param("session_id")); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

func (h *BookingHandler) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
		return
	}

	booking, err := h.service.Confirm(c.Request.Context(), reservation.ConfirmInput{
		SessionID:       req.SessionID,
		UserID:          req.UserID,
		StaffID:         req.StaffID,
		LocationID:      req.LocationID,
		CategoryCode:    req.Category,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(booking))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking id must be numeric"})
		return
	}
	var req cancelBookingRequest
	// Body is optional on cancellation.
	_ = c.ShouldBindJSON(&req)

	booking, err := h.service.CancelBooking(c.Request.Context(), id, req.Reason)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		UserID:          b.UserID,
		StaffID:         b.StaffID,
		LocationID:      b.LocationID,
		Category:        b.CategoryCode,
		StartTime:       b.StartTime.Format(time.RFC3339),
		EndTime:         b.EndTime.Format(time.RFC3339),
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrSlotConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrReservationExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
