package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eslamalbaik/earth-innovators-booking/internal/models"
)

type mockRewardRepo struct {
	grants map[string]*models.RewardGrant
}

func (m *mockRewardRepo) Grant(ctx context.Context, grant *models.RewardGrant) (*models.RewardGrant, bool, error) {
	key := grant.SourceType + ":" + grant.SourceID
	if existing, ok := m.grants[key]; ok {
		return existing, false, nil
	}
	if m.grants == nil {
		m.grants = make(map[string]*models.RewardGrant)
	}
	grant.ID = "grant-" + grant.SourceID
	m.grants[key] = grant
	return grant, true, nil
}

func (m *mockRewardRepo) BalanceFor(ctx context.Context, recipientID string) (int, error) {
	total := 0
	for _, grant := range m.grants {
		if grant.RecipientID == recipientID {
			total += grant.Amount
		}
	}
	return total, nil
}

func (m *mockRewardRepo) ListByRecipient(ctx context.Context, recipientID string) ([]models.RewardGrant, error) {
	var out []models.RewardGrant
	for _, grant := range m.grants {
		if grant.RecipientID == recipientID {
			out = append(out, *grant)
		}
	}
	return out, nil
}

func TestRewardsServiceGrantForCompletion(t *testing.T) {
	repo := &mockRewardRepo{}
	svc := NewRewardsService(repo, 10, zap.NewNop())
	booking := &models.Booking{ID: "booking-1", StudentID: "student-1", Status: models.BookingCompleted}

	grant, created, err := svc.GrantForCompletion(context.Background(), booking)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "student-1", grant.RecipientID)
	assert.Equal(t, 10, grant.Amount)
	assert.Equal(t, models.RewardSourceBookingCompleted, grant.SourceType)

	balance, err := svc.Balance(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestRewardsServiceGrantIsIdempotent(t *testing.T) {
	repo := &mockRewardRepo{}
	svc := NewRewardsService(repo, 10, zap.NewNop())
	booking := &models.Booking{ID: "booking-1", StudentID: "student-1", Status: models.BookingCompleted}

	first, created, err := svc.GrantForCompletion(context.Background(), booking)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.GrantForCompletion(context.Background(), booking)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	balance, err := svc.Balance(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestRewardsServiceDefaultPoints(t *testing.T) {
	svc := NewRewardsService(&mockRewardRepo{}, 0, nil)
	assert.Equal(t, DefaultCompletionPoints, svc.completionPoints)
}
