package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eslamalbaik/earth-innovators-booking/internal/dto"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/export"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/response"
)

type availabilityService interface {
	CreateSlot(ctx context.Context, actor *models.JWTClaims, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error)
	ListSlots(ctx context.Context, req dto.SlotFilterRequest) (*dto.SlotListResponse, error)
	CancelSlot(ctx context.Context, actor *models.JWTClaims, id string) error
	Schedule(ctx context.Context, actor *models.JWTClaims, from, to time.Time) ([]models.AvailabilitySlot, error)
}

// AvailabilityHandler wires HTTP endpoints to the availability service.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Create godoc
// @Summary Declare an availability slot
// @Description Declare a block of time open for booking
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /slots [post]
func (h *AvailabilityHandler) Create(c *gin.Context) {
	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}

	slot, err := h.service.CreateSlot(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, slot)
}

// List godoc
// @Summary List availability slots
// @Description List slots filtered by teacher, window and status
// @Tags Slots
// @Produce json
// @Param teacher_id query string false "Teacher ID"
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Param status query string false "Slot status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	req := dto.SlotFilterRequest{
		TeacherID: c.Query("teacher_id"),
		Status:    c.Query("status"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		req.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		req.To = &ts
	}

	res, err := h.service.ListSlots(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res.Slots, &res.Pagination)
}

// Cancel godoc
// @Summary Cancel an availability slot
// @Description Remove an available slot from circulation
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{id} [delete]
func (h *AvailabilityHandler) Cancel(c *gin.Context) {
	if err := h.service.CancelSlot(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportSchedule godoc
// @Summary Export a teacher's schedule
// @Description Download the acting teacher's slots as CSV
// @Tags Slots
// @Produce text/csv
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Success 200 {string} string "CSV payload"
// @Security BearerAuth
// @Router /slots/export [get]
func (h *AvailabilityHandler) ExportSchedule(c *gin.Context) {
	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp"))
			return
		}
		from = ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp"))
			return
		}
		to = ts
	}

	slots, err := h.service.Schedule(c.Request.Context(), claimsFromContext(c), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := export.ScheduleCSV(slots)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render schedule"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="schedule.csv"`)
	c.Data(http.StatusOK, "text/csv", payload)
}
