package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avdeev-dev/slotbook/internal/service/availability"
	"github.com/avdeev-dev/slotbook/monitoring"
	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	service availability.AvailabilityUseCase
}

type slotResponse struct {
	StaffID         int64  `json:"staff_id"`
	LocationID      int64  `json:"location_id"`
	Category        string `json:"category"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func NewAvailabilityHandler(service availability.AvailabilityUseCase) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

func (h *AvailabilityHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
}

func (h *AvailabilityHandler) list(c *gin.Context) {
	staffID, err := strconv.ParseInt(c.Query("staff_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "staff_id is required"})
		return
	}
	locationID, err := strconv.ParseInt(c.Query("location_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil || duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a positive number of minutes"})
		return
	}

	slots, err := h.service.GenerateSlots(c.Request.Context(), availability.SlotRequest{
		StaffID:         staffID,
		LocationID:      locationID,
		CategoryCode:    c.Query("category"),
		Date:            date,
		DurationMinutes: duration,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	monitoring.RecordSlotsGenerated(len(slots))

	resp := make([]slotResponse, 0, len(slots))
	for _, slot := range slots {
		resp = append(resp, slotResponse{
			StaffID:         slot.StaffID,
			LocationID:      slot.LocationID,
			Category:        slot.CategoryCode,
			StartTime:       slot.StartTime().Format(time.RFC3339),
			EndTime:         slot.EndTime().Format(time.RFC3339),
			DurationMinutes: slot.DurationMinutes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"slots": resp})
}
