package models_test

import (
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/stretchr/testify/assert"
)

func TestRequestState_EffectiveStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		state models.RequestState
		want  models.RequestStatus
	}{
		{"pending no expiration", models.RequestState{Status: models.RequestPending}, models.RequestPending},
		{"pending future expiration", models.RequestState{Status: models.RequestPending, ExpirationDate: &future}, models.RequestPending},
		{"pending past expiration", models.RequestState{Status: models.RequestPending, ExpirationDate: &past}, models.RequestExpired},
		{"pending expires exactly now", models.RequestState{Status: models.RequestPending, ExpirationDate: &now}, models.RequestExpired},
		{"accepted past expiration", models.RequestState{Status: models.RequestAccepted, ExpirationDate: &past}, models.RequestAccepted},
		{"canceled", models.RequestState{Status: models.RequestCanceled}, models.RequestCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.EffectiveStatus(now))
		})
	}
}

func TestRequestState_ApplyLazyExpiration(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	inv := models.GroupInvitation{RequestState: models.RequestState{
		Status:         models.RequestPending,
		ExpirationDate: &past,
	}}
	inv.State().ApplyLazyExpiration(now)
	assert.Equal(t, models.RequestExpired, inv.Status)

	req := models.GroupJoinRequest{RequestState: models.RequestState{Status: models.RequestPending}}
	req.State().ApplyLazyExpiration(now)
	assert.Equal(t, models.RequestPending, req.Status)
}

func TestRequestStatus_Terminal(t *testing.T) {
	assert.False(t, models.RequestPending.Terminal())
	for _, s := range []models.RequestStatus{
		models.RequestAccepted, models.RequestDeclined, models.RequestIgnored,
		models.RequestCanceled, models.RequestExpired,
	} {
		assert.True(t, s.Terminal(), s)
	}
}
