package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"localservices/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictChecker(t *testing.T) {
	ctx := context.Background()
	window := models.NewWindow(morning.Add(time.Hour), 2*time.Hour) // 10:00-12:00
	lookbackFrom := window.Start.Add(-12 * time.Hour)

	tests := []struct {
		name     string
		existing []*models.Booking
		want     bool
	}{
		{"empty", nil, false},
		{"overlapping pending", []*models.Booking{
			{Status: models.StatusPending, Window: models.NewWindow(morning.Add(2*time.Hour), 2*time.Hour)},
		}, true},
		{"long booking started earlier", []*models.Booking{
			{Status: models.StatusConfirmed, Window: models.NewWindow(morning.Add(-8*time.Hour), 10*time.Hour)},
		}, true},
		{"ends exactly at start", []*models.Booking{
			{Status: models.StatusPending, Window: models.NewWindow(morning, time.Hour)},
		}, false},
		{"inactive ignored", []*models.Booking{
			{Status: models.StatusCancelled, Window: window},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			repo.On("ListActiveStartingBetween", ctx, "R1", lookbackFrom, window.End).Return(tt.existing, nil).Once()

			got, err := NewConflictChecker(repo, 12*time.Hour).HasConflict(ctx, "R1", window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			repo.AssertExpectations(t)
		})
	}
}

func TestConflictChecker_Error(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	boom := errors.New("boom")
	window := models.NewWindow(morning, time.Hour)
	repo.On("ListActiveStartingBetween", ctx, "R1", window.Start.Add(-time.Hour), window.End).Return(nil, boom).Once()

	_, err := NewConflictChecker(repo, time.Hour).HasConflict(ctx, "R1", window)
	assert.ErrorIs(t, err, boom)
}
