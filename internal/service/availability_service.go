package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/dto"
	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

type availabilitySlotRepository interface {
	Create(ctx context.Context, slot *models.AvailabilitySlot) (bool, error)
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	List(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, int, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

type slotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateTeacherSlots(ctx context.Context, teacherID string) error
}

// AvailabilityService manages teacher availability slots.
type AvailabilityService struct {
	repo      availabilitySlotRepository
	cache     slotCache
	cacheKey  func(teacherID string, from, to time.Time, page int) string
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(
	repo availabilitySlotRepository,
	cache slotCache,
	cacheKey func(teacherID string, from, to time.Time, page int) string,
	cacheTTL time.Duration,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:      repo,
		cache:     cache,
		cacheKey:  cacheKey,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// CreateSlot declares a new availability slot owned by the acting teacher.
func (s *AvailabilityService) CreateSlot(ctx context.Context, actor *models.JWTClaims, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error) {
	if actor == nil || (actor.Role != models.RoleTeacher && !actor.IsAdmin()) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can declare availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot start must be before its end")
	}
	if req.StartTime.Before(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot cannot start in the past")
	}

	slot := &models.AvailabilitySlot{
		TeacherID: actor.UserID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Notes:     req.Notes,
	}
	overlap, err := s.repo.Create(ctx, slot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	if overlap {
		return nil, appErrors.Clone(appErrors.ErrSlotOverlap, "")
	}

	s.invalidateCache(ctx, slot.TeacherID)
	return slot, nil
}

// GetSlot returns a slot by ID.
func (s *AvailabilityService) GetSlot(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch slot")
	}
	return slot, nil
}

// ListSlots returns a page of slots. Open-slot listings for a single teacher
// are served from cache when possible.
func (s *AvailabilityService) ListSlots(ctx context.Context, req dto.SlotFilterRequest) (*dto.SlotListResponse, error) {
	filter := models.SlotFilter{
		TeacherID: req.TeacherID,
		Status:    models.SlotStatus(req.Status),
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.From != nil {
		filter.From = *req.From
	}
	if req.To != nil {
		filter.To = *req.To
	}

	cacheable := s.cache != nil && s.cacheKey != nil &&
		filter.TeacherID != "" && filter.Status == models.SlotAvailable
	var key string
	if cacheable {
		key = s.cacheKey(filter.TeacherID, filter.From, filter.To, filter.Page)
		var cached dto.SlotListResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}

	resp := &dto.SlotListResponse{
		Slots: slots,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}
	if cacheable {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache slot listing", zap.Error(err))
		}
	}
	return resp, nil
}

// CancelSlot removes an available slot from circulation. Only the owning
// teacher or an admin may cancel, and only while the slot is still available.
func (s *AvailabilityService) CancelSlot(ctx context.Context, actor *models.JWTClaims, id string) error {
	slot, err := s.GetSlot(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil || (slot.TeacherID != actor.UserID && !actor.IsAdmin()) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning teacher can cancel this slot")
	}

	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel slot")
	}
	if !cancelled {
		return appErrors.Clone(appErrors.ErrInvalidState, "slot is booked or already cancelled")
	}

	s.invalidateCache(ctx, slot.TeacherID)
	return nil
}

// schedulePageSize matches the repository's maximum page size.
const schedulePageSize = 100

// Schedule returns every slot owned by a teacher inside a window, for export.
// The repository is paged until the reported total is collected, so a schedule
// larger than one page is never truncated.
func (s *AvailabilityService) Schedule(ctx context.Context, actor *models.JWTClaims, from, to time.Time) ([]models.AvailabilitySlot, error) {
	if actor == nil || (actor.Role != models.RoleTeacher && !actor.IsAdmin()) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can export a schedule")
	}

	var schedule []models.AvailabilitySlot
	for page := 1; ; page++ {
		slots, total, err := s.repo.List(ctx, models.SlotFilter{
			TeacherID: actor.UserID,
			From:      from,
			To:        to,
			Page:      page,
			PageSize:  schedulePageSize,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
		}
		schedule = append(schedule, slots...)
		if len(slots) == 0 || len(schedule) >= total {
			break
		}
	}
	return schedule, nil
}

func (s *AvailabilityService) invalidateCache(ctx context.Context, teacherID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTeacherSlots(ctx, teacherID); err != nil {
		s.logger.Warn("failed to invalidate slot cache", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}
