package service

import (
	"context"
	"time"

	"localservices/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateBookingIfFree(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) CreateBookingGroup(ctx context.Context, b []*models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) ListActiveStartingBetween(ctx context.Context, r string, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, r, from, to)
	return bookingsArg(args)
}
func (m *mockRepo) ListByCustomer(ctx context.Context, id string) ([]*models.Booking, error) {
	return bookingsArg(m.Called(ctx, id))
}
func (m *mockRepo) ListByProvider(ctx context.Context, id string) ([]*models.Booking, error) {
	return bookingsArg(m.Called(ctx, id))
}
func (m *mockRepo) ListByGroup(ctx context.Context, id string) ([]*models.Booking, error) {
	return bookingsArg(m.Called(ctx, id))
}
func (m *mockRepo) ListByStartRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	return bookingsArg(m.Called(ctx, from, to))
}
func (m *mockRepo) UpdateStatus(ctx context.Context, c models.StatusChange) (*models.Booking, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func bookingsArg(args mock.Arguments) ([]*models.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Provider), args.Error(1)
}
func (m *mockDirectory) FindProviders(ctx context.Context, category, city string) ([]*models.Provider, error) {
	args := m.Called(ctx, category, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Provider), args.Error(1)
}

type mockListings struct {
	mock.Mock
}

func (m *mockListings) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

type mockAvailability struct {
	mock.Mock
}

func (m *mockAvailability) SetAvailable(ctx context.Context, id string, available bool) error {
	return m.Called(ctx, id, available).Error(0)
}
func (m *mockAvailability) IsAvailable(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}
