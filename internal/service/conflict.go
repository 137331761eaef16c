package service

import (
	"context"
	"fmt"
	"time"

	"localservices/internal/domain"
	"localservices/internal/models"
)

// ConflictChecker answers whether a resource already has an active booking
// overlapping a candidate window. It reads a snapshot and takes no lock.
type ConflictChecker struct {
	repo        domain.BookingRepository
	maxDuration time.Duration
}

// NewConflictChecker builds a checker whose lookback equals the longest allowed booking.
func NewConflictChecker(repo domain.BookingRepository, maxDuration time.Duration) *ConflictChecker {
	return &ConflictChecker{repo: repo, maxDuration: maxDuration}
}

// HasConflict expects a validated window.
func (c *ConflictChecker) HasConflict(ctx context.Context, resourceID string, window models.Window) (bool, error) {
	candidates, err := c.repo.ListActiveStartingBetween(ctx, resourceID, window.Start.Add(-c.maxDuration), window.End)
	if err != nil {
		return false, fmt.Errorf("conflict check for %s: %w", resourceID, err)
	}
	for _, existing := range candidates {
		if existing.IsActive() && existing.Window.Overlaps(window) {
			return true, nil
		}
	}
	return false, nil
}
