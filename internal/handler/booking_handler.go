package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eslamalbaik/earth-innovators-booking/internal/dto"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/export"
	"github.com/eslamalbaik/earth-innovators-booking/pkg/response"
)

type bookingService interface {
	Request(ctx context.Context, actor *models.JWTClaims, req dto.RequestBookingRequest) (*models.BookingDetail, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.BookingDetail, error)
	ListMine(ctx context.Context, actor *models.JWTClaims, status models.BookingStatus, page, pageSize int) (*dto.BookingListResponse, error)
	ListTeaching(ctx context.Context, actor *models.JWTClaims, status models.BookingStatus, page, pageSize int) (*dto.BookingListResponse, error)
	Approve(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error)
	Complete(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error)
}

type rewardsService interface {
	Balance(ctx context.Context, recipientID string) (int, error)
	History(ctx context.Context, recipientID string) ([]models.RewardGrant, error)
}

// BookingHandler wires HTTP endpoints to the booking service.
type BookingHandler struct {
	bookings bookingService
	rewards  rewardsService
	receipts *export.ReceiptRenderer
}

// NewBookingHandler creates a new handler.
func NewBookingHandler(bookings bookingService, rewards rewardsService) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		rewards:  rewards,
		receipts: export.NewReceiptRenderer(),
	}
}

// Request godoc
// @Summary Request a booking
// @Description Claim an open slot for the acting student
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.RequestBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings [post]
func (h *BookingHandler) Request(c *gin.Context) {
	var req dto.RequestBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}

	detail, err := h.bookings.Request(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// Get godoc
// @Summary Get a booking
// @Description Fetch a booking with participant and slot context
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	detail, err := h.bookings.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListMine godoc
// @Summary List own bookings
// @Description List bookings requested by the acting student
// @Tags Bookings
// @Produce json
// @Param status query string false "Booking status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/mine [get]
func (h *BookingHandler) ListMine(c *gin.Context) {
	status, ok := h.statusQuery(c)
	if !ok {
		return
	}
	res, err := h.bookings.ListMine(c.Request.Context(), claimsFromContext(c), status,
		intQuery(c, "page", 1), intQuery(c, "page_size", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res.Bookings, &res.Pagination)
}

// ListTeaching godoc
// @Summary List teaching bookings
// @Description List bookings against the acting teacher's slots
// @Tags Bookings
// @Produce json
// @Param status query string false "Booking status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/teaching [get]
func (h *BookingHandler) ListTeaching(c *gin.Context) {
	status, ok := h.statusQuery(c)
	if !ok {
		return
	}
	res, err := h.bookings.ListTeaching(c.Request.Context(), claimsFromContext(c), status,
		intQuery(c, "page", 1), intQuery(c, "page_size", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res.Bookings, &res.Pagination)
}

// Approve godoc
// @Summary Approve a booking
// @Description Move a pending booking to approved and start payment capture
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.BookingActionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/approve [post]
func (h *BookingHandler) Approve(c *gin.Context) {
	h.action(c, h.bookings.Approve)
}

// Reject godoc
// @Summary Reject a booking
// @Description Decline a pending booking and release its slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.BookingActionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/reject [post]
func (h *BookingHandler) Reject(c *gin.Context) {
	h.action(c, h.bookings.Reject)
}

// Cancel godoc
// @Summary Cancel a booking
// @Description Withdraw a pending or approved booking, releasing its slot
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.BookingActionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	h.action(c, h.bookings.Cancel)
}

// Complete godoc
// @Summary Complete a booking
// @Description Mark an approved booking as delivered, granting rewards
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.BookingActionRequest false "Optional notes"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	h.action(c, h.bookings.Complete)
}

// Receipt godoc
// @Summary Download a booking receipt
// @Description Render the booking receipt as PDF
// @Tags Bookings
// @Produce application/pdf
// @Param id path string true "Booking ID"
// @Success 200 {string} string "PDF payload"
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /bookings/{id}/receipt [get]
func (h *BookingHandler) Receipt(c *gin.Context) {
	detail, err := h.bookings.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := h.receipts.Render(detail)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

// Rewards godoc
// @Summary List own rewards
// @Description Ledger and point balance for the acting user
// @Tags Rewards
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rewards [get]
func (h *BookingHandler) Rewards(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	balance, err := h.rewards.Balance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	grants, err := h.rewards.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.RewardSummaryResponse{Balance: balance, Grants: grants}, nil)
}

type bookingAction func(ctx context.Context, actor *models.JWTClaims, id string, notes *string) (*models.BookingDetail, error)

func (h *BookingHandler) action(c *gin.Context, fn bookingAction) {
	var req dto.BookingActionRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
			return
		}
	}

	detail, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

func (h *BookingHandler) statusQuery(c *gin.Context) (models.BookingStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	status, err := models.ParseBookingStatus(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid booking status"))
		return "", false
	}
	return status, true
}
