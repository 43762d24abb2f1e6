package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslamalbaik/earth-innovators-booking/internal/dto"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

type availabilityServiceMock struct {
	slot        *models.AvailabilitySlot
	listResp    *dto.SlotListResponse
	slots       []models.AvailabilitySlot
	err         error
	lastFilter  dto.SlotFilterRequest
	cancelledID string
}

func (m *availabilityServiceMock) CreateSlot(ctx context.Context, actor *models.JWTClaims, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error) {
	return m.slot, m.err
}

func (m *availabilityServiceMock) ListSlots(ctx context.Context, req dto.SlotFilterRequest) (*dto.SlotListResponse, error) {
	m.lastFilter = req
	return m.listResp, m.err
}

func (m *availabilityServiceMock) CancelSlot(ctx context.Context, actor *models.JWTClaims, id string) error {
	m.cancelledID = id
	return m.err
}

func (m *availabilityServiceMock) Schedule(ctx context.Context, actor *models.JWTClaims, from, to time.Time) ([]models.AvailabilitySlot, error) {
	return m.slots, m.err
}

func TestAvailabilityHandlerCreate(t *testing.T) {
	mockSvc := &availabilityServiceMock{slot: &models.AvailabilitySlot{ID: "slot-1", Status: models.SlotAvailable}}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/slots",
		`{"start_time":"2026-09-07T14:00:00Z","end_time":"2026-09-07T15:00:00Z"}`)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "slot-1")
}

func TestAvailabilityHandlerCreateOverlap(t *testing.T) {
	mockSvc := &availabilityServiceMock{err: appErrors.ErrSlotOverlap}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodPost, "/slots",
		`{"start_time":"2026-09-07T14:00:00Z","end_time":"2026-09-07T15:00:00Z"}`)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "SLOT_OVERLAP")
}

func TestAvailabilityHandlerListParsesWindow(t *testing.T) {
	mockSvc := &availabilityServiceMock{listResp: &dto.SlotListResponse{
		Slots:      []models.AvailabilitySlot{{ID: "slot-1"}},
		Pagination: models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodGet,
		"/slots?teacher_id=teacher-1&status=available&from=2026-09-01T00:00:00Z&to=2026-09-08T00:00:00Z&page=2&page_size=10", "")
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", mockSvc.lastFilter.TeacherID)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	require.NotNil(t, mockSvc.lastFilter.From)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), mockSvc.lastFilter.From.UTC())
}

func TestAvailabilityHandlerListRejectsBadTimestamp(t *testing.T) {
	handler := NewAvailabilityHandler(&availabilityServiceMock{})

	c, w := testContext(t, http.MethodGet, "/slots?from=yesterday", "")
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandlerCancel(t *testing.T) {
	mockSvc := &availabilityServiceMock{}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/slots/slot-1", "")
	c.Params = gin.Params{{Key: "id", Value: "slot-1"}}
	handler.Cancel(c)
	// gin buffers the status until a body write; flush it so the recorder sees 204.
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "slot-1", mockSvc.cancelledID)
}

func TestAvailabilityHandlerCancelBooked(t *testing.T) {
	mockSvc := &availabilityServiceMock{err: appErrors.ErrInvalidState}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodDelete, "/slots/slot-1", "")
	c.Params = gin.Params{{Key: "id", Value: "slot-1"}}
	handler.Cancel(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_STATE")
}

func TestAvailabilityHandlerExportSchedule(t *testing.T) {
	mockSvc := &availabilityServiceMock{slots: []models.AvailabilitySlot{{
		ID:        "slot-1",
		StartTime: time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC),
		Status:    models.SlotAvailable,
	}}}
	handler := NewAvailabilityHandler(mockSvc)

	c, w := testContext(t, http.MethodGet, "/slots/export", "")
	handler.ExportSchedule(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "slot-1")
}
