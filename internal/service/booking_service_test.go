package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"localservices/internal/database"
	"localservices/internal/events"
	"localservices/internal/models"
	"localservices/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockedService struct {
	svc       *BookingService
	repo      *mockRepo
	directory *mockDirectory
	listings  *mockListings
	avail     *mockAvailability
	bus       *mockEventBus
}

func newMockedService() *mockedService {
	m := &mockedService{
		repo:      new(mockRepo),
		directory: new(mockDirectory),
		listings:  new(mockListings),
		avail:     new(mockAvailability),
		bus:       new(mockEventBus),
	}
	logger := zerolog.New(io.Discard)
	m.svc = NewBookingService(m.repo, m.listings, m.directory, m.avail, m.bus, Options{
		CancelRetry: worker.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond},
	}, &logger)
	m.svc.newGroupID = func() string { return "group-fixed" }
	return m
}

func statusChange(id int64, from, to string) interface{} {
	return mock.MatchedBy(func(c models.StatusChange) bool {
		return c.ID == id && c.From == from && c.To == to
	})
}

func TestBookingService(t *testing.T) {
	ctx := context.Background()

	t.Run("ConfirmSurvivesAvailabilityFailure", func(t *testing.T) {
		m := newMockedService()
		pending := &models.Booking{ID: 1, ProviderID: "p1", CustomerID: "c1", Status: models.StatusPending}
		confirmed := &models.Booking{ID: 1, ProviderID: "p1", CustomerID: "c1", Status: models.StatusConfirmed}

		m.repo.On("GetBooking", ctx, int64(1)).Return(pending, nil).Once()
		m.directory.On("GetProvider", ctx, "p1").Return(&models.Provider{ID: "p1", DisplayName: "Pat", City: "Edmonton"}, nil).Once()
		m.repo.On("UpdateStatus", ctx, mock.MatchedBy(func(c models.StatusChange) bool {
			return c.ID == 1 && c.To == models.StatusConfirmed && c.Accepted != nil && c.Accepted.DisplayName == "Pat"
		})).Return(confirmed, nil).Once()
		m.avail.On("SetAvailable", ctx, "p1", false).Return(errors.New("redis down")).Once()
		m.bus.On("PublishJSON", events.EventBookingConfirmed, mock.Anything).Return(nil).Once()

		got, err := m.svc.ChangeStatus(ctx, providerActor("p1"), 1, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
		m.repo.AssertExpectations(t)
		m.avail.AssertExpectations(t)
		m.bus.AssertExpectations(t)
	})

	t.Run("ConfirmWithoutProviderProfile", func(t *testing.T) {
		m := newMockedService()
		pending := &models.Booking{ID: 2, ProviderID: "p9", Status: models.StatusPending}

		m.repo.On("GetBooking", ctx, int64(2)).Return(pending, nil).Once()
		m.directory.On("GetProvider", ctx, "p9").Return(nil, database.ErrNotFound).Once()
		m.repo.On("UpdateStatus", ctx, mock.MatchedBy(func(c models.StatusChange) bool {
			return c.Accepted != nil && c.Accepted.ID == "p9" && c.Accepted.DisplayName == ""
		})).Return(&models.Booking{ID: 2, ProviderID: "p9", Status: models.StatusConfirmed}, nil).Once()
		m.avail.On("SetAvailable", ctx, "p9", false).Return(nil).Once()
		m.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("bus closed")).Once()

		_, err := m.svc.ChangeStatus(ctx, providerActor("p9"), 2, models.StatusConfirmed)
		assert.NoError(t, err, "publish failures are logged only")
		m.repo.AssertExpectations(t)
	})

	t.Run("StaleWriteIsInvalidTransition", func(t *testing.T) {
		m := newMockedService()
		pending := &models.Booking{ID: 3, ProviderID: "p1", Status: models.StatusPending}

		m.repo.On("GetBooking", ctx, int64(3)).Return(pending, nil).Once()
		m.repo.On("UpdateStatus", ctx, statusChange(3, models.StatusPending, models.StatusDeclined)).
			Return(nil, database.ErrStatusChanged).Once()

		_, err := m.svc.ChangeStatus(ctx, providerActor("p1"), 3, models.StatusDeclined)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		m.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("ConcurrentCancelCountsAsDone", func(t *testing.T) {
		m := newMockedService()
		pending := &models.Booking{ID: 4, CustomerID: "cust-1", Status: models.StatusPending}
		cancelled := &models.Booking{ID: 4, CustomerID: "cust-1", Status: models.StatusCancelled}

		m.repo.On("GetBooking", ctx, int64(4)).Return(pending, nil).Once()
		m.repo.On("UpdateStatus", ctx, statusChange(4, models.StatusPending, models.StatusCancelled)).
			Return(nil, database.ErrStatusChanged).Once()
		m.repo.On("GetBooking", ctx, int64(4)).Return(cancelled, nil).Once()

		got, err := m.svc.ChangeStatus(ctx, customer, 4, models.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
	})

	t.Run("BroadcastStoreFailure", func(t *testing.T) {
		m := newMockedService()
		m.directory.On("FindProviders", ctx, "Cleaning", "Calgary").Return([]*models.Provider{{ID: "p1"}, {ID: "p2"}}, nil).Once()
		m.repo.On("CreateBookingGroup", ctx, mock.MatchedBy(func(b []*models.Booking) bool {
			return len(b) == 2 && b[0].GroupID == "group-fixed" && b[1].GroupID == "group-fixed"
		})).Return(errors.New("disk full")).Once()

		_, err := m.svc.CreateBroadcast(ctx, customer, BroadcastRequest{
			Category: "Cleaning", City: "Calgary", Start: morning, Duration: time.Hour,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "group-fixed")
		m.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("InvalidWindowBeforeIO", func(t *testing.T) {
		m := newMockedService()
		_, err := m.svc.CreateBroadcast(ctx, customer, BroadcastRequest{Category: "Cleaning", Start: morning, Duration: -time.Hour})
		assert.ErrorIs(t, err, ErrInvalidWindow)
		_, err = m.svc.CreateSingle(ctx, customer, SingleRequest{ListingID: "R1", Start: morning, Duration: 13 * time.Hour})
		assert.ErrorIs(t, err, ErrInvalidWindow)
		m.repo.AssertNotCalled(t, "CreateBookingGroup", mock.Anything, mock.Anything)
		m.listings.AssertNotCalled(t, "GetListing", mock.Anything, mock.Anything)
	})
}

func TestCancelGroup_Retries(t *testing.T) {
	ctx := context.Background()
	m := newMockedService()

	siblings := []*models.Booking{
		{ID: 10, GroupID: "g", CustomerID: "cust-1", Status: models.StatusPending},
		{ID: 11, GroupID: "g", CustomerID: "cust-1", Status: models.StatusPending},
		{ID: 12, GroupID: "g", CustomerID: "cust-1", Status: models.StatusDeclined},
	}
	m.repo.On("ListByGroup", ctx, "g").Return(siblings, nil).Once()

	// 10 fails once then succeeds
	m.repo.On("UpdateStatus", mock.Anything, statusChange(10, models.StatusPending, models.StatusCancelled)).
		Return(nil, errors.New("database is locked")).Once()
	m.repo.On("UpdateStatus", mock.Anything, statusChange(10, models.StatusPending, models.StatusCancelled)).
		Return(&models.Booking{ID: 10, CustomerID: "cust-1", Status: models.StatusCancelled}, nil).Once()

	// 11 never succeeds
	m.repo.On("UpdateStatus", mock.Anything, statusChange(11, models.StatusPending, models.StatusCancelled)).
		Return(nil, errors.New("database is locked")).Times(3)

	m.bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()

	res, err := m.svc.CancelGroup(ctx, customer, "g")
	require.Error(t, err)
	assert.Equal(t, []int64{10}, res.Cancelled)
	assert.Equal(t, []int64{12}, res.Skipped)
	assert.Equal(t, []int64{11}, res.Failed)
	m.repo.AssertExpectations(t)
	m.bus.AssertExpectations(t)
}

func TestCancelGroup_SiblingConfirmedMidway(t *testing.T) {
	ctx := context.Background()
	m := newMockedService()

	m.repo.On("ListByGroup", ctx, "g").Return([]*models.Booking{
		{ID: 20, GroupID: "g", CustomerID: "cust-1", Status: models.StatusPending},
	}, nil).Once()
	m.repo.On("UpdateStatus", mock.Anything, statusChange(20, models.StatusPending, models.StatusCancelled)).
		Return(nil, database.ErrStatusChanged).Once()
	m.repo.On("GetBooking", mock.Anything, int64(20)).
		Return(&models.Booking{ID: 20, GroupID: "g", CustomerID: "cust-1", Status: models.StatusConfirmed}, nil).Once()

	res, err := m.svc.CancelGroup(ctx, customer, "g")
	require.NoError(t, err)
	assert.Empty(t, res.Cancelled)
	assert.Equal(t, []int64{20}, res.Skipped)
}

func TestStampNeverMovesBackwards(t *testing.T) {
	m := newMockedService()
	future := time.Now().Add(time.Hour).UTC()
	assert.Equal(t, future, m.svc.stamp(&models.Booking{UpdatedAt: future}))

	past := time.Now().Add(-time.Hour)
	assert.True(t, m.svc.stamp(&models.Booking{UpdatedAt: past}).After(past))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, 142.5, quote(95, 90*time.Minute))
	assert.Equal(t, 0.0, quote(0, time.Hour))
}

func TestProviderAvailability_StoreErrors(t *testing.T) {
	ctx := context.Background()
	p1 := models.Actor{ID: "p1", Role: models.RoleProvider}

	m := newMockedService()
	m.directory.On("GetProvider", mock.Anything, "p1").Return(&models.Provider{ID: "p1"}, nil)
	m.avail.On("IsAvailable", mock.Anything, "p1").Return(false, errors.New("redis down"))
	m.avail.On("SetAvailable", mock.Anything, "p1", true).Return(errors.New("redis down"))

	_, err := m.svc.ProviderAvailability(ctx, p1, "p1")
	assert.ErrorContains(t, err, "redis down")
	assert.ErrorContains(t, m.svc.SetProviderAvailability(ctx, p1, "p1", true), "redis down")

	m.svc.availability = nil
	available, err := m.svc.ProviderAvailability(ctx, p1, "p1")
	require.NoError(t, err)
	assert.True(t, available)
	assert.ErrorIs(t, m.svc.SetProviderAvailability(ctx, p1, "p1", true), errNoAvailabilityStore)
}
