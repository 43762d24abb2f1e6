package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
	appErrors "github.com/eslamalbaik/earth-innovators-booking/pkg/errors"
)

type rewardRepository interface {
	Grant(ctx context.Context, grant *models.RewardGrant) (*models.RewardGrant, bool, error)
	BalanceFor(ctx context.Context, recipientID string) (int, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]models.RewardGrant, error)
}

// DefaultCompletionPoints is awarded per completed session when no override
// is configured.
const DefaultCompletionPoints = 10

// RewardsService maintains the append-only reward ledger.
type RewardsService struct {
	repo             rewardRepository
	completionPoints int
	logger           *zap.Logger
}

// NewRewardsService constructs a RewardsService.
func NewRewardsService(repo rewardRepository, completionPoints int, logger *zap.Logger) *RewardsService {
	if completionPoints <= 0 {
		completionPoints = DefaultCompletionPoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardsService{repo: repo, completionPoints: completionPoints, logger: logger}
}

// GrantForCompletion awards points to the student for a completed booking.
// Keyed by the booking ID, so re-delivery of the same completion event
// resolves to the already recorded grant.
func (s *RewardsService) GrantForCompletion(ctx context.Context, booking *models.Booking) (*models.RewardGrant, bool, error) {
	grant := &models.RewardGrant{
		RecipientID: booking.StudentID,
		SourceType:  models.RewardSourceBookingCompleted,
		SourceID:    booking.ID,
		Amount:      s.completionPoints,
		Reason:      "tutoring session completed",
	}

	recorded, created, err := s.repo.Grant(ctx, grant)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reward grant")
	}
	if !created {
		s.logger.Debug("reward grant already recorded",
			zap.String("booking_id", booking.ID),
			zap.String("recipient_id", booking.StudentID))
	}
	return recorded, created, nil
}

// Balance returns the recipient's cumulative point balance.
func (s *RewardsService) Balance(ctx context.Context, recipientID string) (int, error) {
	balance, err := s.repo.BalanceFor(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute reward balance")
	}
	return balance, nil
}

// History returns the recipient's grants, newest first.
func (s *RewardsService) History(ctx context.Context, recipientID string) ([]models.RewardGrant, error) {
	grants, err := s.repo.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reward grants")
	}
	return grants, nil
}
