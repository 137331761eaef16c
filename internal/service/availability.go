package service

import (
	"context"
	"errors"
	"fmt"

	"localservices/internal/models"
)

var errNoAvailabilityStore = errors.New("availability store not configured")

// ProviderAvailability reads a provider's availability flag. Providers read their
// own flag and admins read any. A provider never written reads as available.
func (s *BookingService) ProviderAvailability(ctx context.Context, actor models.Actor, providerID string) (bool, error) {
	if err := s.authorizeProvider(ctx, actor, providerID); err != nil {
		return false, err
	}
	if s.availability == nil {
		return true, nil
	}
	available, err := s.availability.IsAvailable(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("read availability of %s: %w", providerID, err)
	}
	return available, nil
}

// SetProviderAvailability lets a provider (or an admin) toggle the flag, for
// instance back to available once a confirmed job is over.
func (s *BookingService) SetProviderAvailability(ctx context.Context, actor models.Actor, providerID string, available bool) error {
	if err := s.authorizeProvider(ctx, actor, providerID); err != nil {
		return err
	}
	if s.availability == nil {
		return errNoAvailabilityStore
	}
	if err := s.availability.SetAvailable(ctx, providerID, available); err != nil {
		return fmt.Errorf("set availability of %s: %w", providerID, err)
	}

	s.logger.Info().
		Str("provider_id", providerID).
		Bool("available", available).
		Str("changed_by", actor.ID).
		Msg("Provider availability changed")
	return nil
}

func (s *BookingService) authorizeProvider(ctx context.Context, actor models.Actor, providerID string) error {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleProvider:
		if actor.ID == "" || actor.ID != providerID {
			return fmt.Errorf("%w: %s may not manage provider %s", ErrForbidden, actor.ID, providerID)
		}
	default:
		return fmt.Errorf("%w: role %q may not manage provider availability", ErrForbidden, actor.Role)
	}

	if _, err := s.directory.GetProvider(ctx, providerID); err != nil {
		return mapStoreError(err)
	}
	return nil
}
