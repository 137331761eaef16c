package domain

import (
	"context"
	"time"

	"localservices/internal/models"
)

type BookingRepository interface {
	CreateBookingIfFree(ctx context.Context, booking *models.Booking) error
	CreateBookingGroup(ctx context.Context, bookings []*models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListActiveStartingBetween(ctx context.Context, resourceID string, from, to time.Time) ([]*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Booking, error)
	ListByProvider(ctx context.Context, providerID string) ([]*models.Booking, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.Booking, error)
	ListByStartRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	UpdateStatus(ctx context.Context, change models.StatusChange) (*models.Booking, error)
}

type ProviderDirectory interface {
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	FindProviders(ctx context.Context, category, city string) ([]*models.Provider, error)
}

type ListingCatalog interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
}

// AvailabilityStore holds the provider availability flag.
type AvailabilityStore interface {
	SetAvailable(ctx context.Context, providerID string, available bool) error
	IsAvailable(ctx context.Context, providerID string) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
