package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"localservices/internal/database"
	"localservices/internal/domain"
	"localservices/internal/events"
	"localservices/internal/metrics"
	"localservices/internal/models"
	"localservices/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Options struct {
	MaxDuration time.Duration
	Currency    string
	// CancelRetry governs the per-sibling writes of a group cancellation.
	CancelRetry worker.RetryPolicy
}

type BookingService struct {
	repo         domain.BookingRepository
	listings     domain.ListingCatalog
	directory    domain.ProviderDirectory
	availability domain.AvailabilityStore
	eventBus     domain.EventPublisher
	checker      *ConflictChecker
	matcher      *ProviderMatcher
	opts         Options
	logger       *zerolog.Logger
	now          func() time.Time
	newGroupID   func() string
}

func NewBookingService(
	repo domain.BookingRepository,
	listings domain.ListingCatalog,
	directory domain.ProviderDirectory,
	availability domain.AvailabilityStore,
	eventBus domain.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = models.DefaultMaxDurationHours * time.Hour
	}
	if opts.Currency == "" {
		opts.Currency = models.DefaultCurrency
	}
	if opts.CancelRetry == (worker.RetryPolicy{}) {
		opts.CancelRetry = worker.DefaultRetryPolicy
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		listings:     listings,
		directory:    directory,
		availability: availability,
		eventBus:     eventBus,
		checker:      NewConflictChecker(repo, opts.MaxDuration),
		matcher:      NewProviderMatcher(directory, logger),
		opts:         opts,
		logger:       logger,
		now:          time.Now,
		newGroupID:   func() string { return uuid.NewString() },
	}
}

// SingleRequest books one listing.
type SingleRequest struct {
	ListingID string
	// CustomerID is honoured only for admins; everyone else books for themselves.
	CustomerID   string
	CustomerName string
	Start        time.Time
	Duration     time.Duration
	// PriceQuote of zero is derived from the listing's hourly price.
	PriceQuote float64
	Currency   string
	Notes      string
}

// BroadcastRequest sends one request to every matching provider.
type BroadcastRequest struct {
	Category     string
	City         string
	ResourceName string
	CustomerID   string
	CustomerName string
	Start        time.Time
	Duration     time.Duration
	PriceQuote   float64
	Currency     string
	Notes        string
}

// BroadcastResult is the outcome of CreateBroadcast.
type BroadcastResult struct {
	GroupID  string            `json:"group_id"`
	Tier     string            `json:"tier"`
	Bookings []*models.Booking `json:"bookings"`
}

func (s *BookingService) customerFor(actor models.Actor, requested string) (string, error) {
	switch actor.Role {
	case models.RoleAdmin:
		if requested != "" {
			return requested, nil
		}
		return actor.ID, nil
	case models.RoleUser, models.RoleProvider:
		if actor.ID == "" {
			return "", fmt.Errorf("%w: anonymous actor", ErrForbidden)
		}
		if requested != "" && requested != actor.ID {
			return "", fmt.Errorf("%w: cannot book on behalf of %s", ErrForbidden, requested)
		}
		return actor.ID, nil
	default:
		return "", fmt.Errorf("%w: role %q cannot create bookings", ErrForbidden, actor.Role)
	}
}

// CreateSingle books a listing for one window. The snapshot conflict check runs
// first; the insert re-checks the slot atomically so concurrent callers cannot
// both win it.
func (s *BookingService) CreateSingle(ctx context.Context, actor models.Actor, req SingleRequest) (*models.Booking, error) {
	window := models.NewWindow(req.Start, req.Duration)
	if err := window.Validate(s.opts.MaxDuration); err != nil {
		return nil, err
	}
	customerID, err := s.customerFor(actor, req.CustomerID)
	if err != nil {
		return nil, err
	}

	listing, err := s.listings.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	conflict, err := s.checker.HasConflict(ctx, listing.ID, window)
	if err != nil {
		return nil, err
	}
	if conflict {
		metrics.IncSlotConflict()
		return nil, fmt.Errorf("%w: %s is booked over %s", ErrSlotUnavailable, listing.Name, window.Start.Format(time.RFC3339))
	}

	price := req.PriceQuote
	if price <= 0 {
		price = quote(listing.PricePerHour, window.Duration())
	}

	booking := &models.Booking{
		ResourceID:   listing.ID,
		ResourceName: listing.Name,
		ProviderID:   listing.OwnerID,
		CustomerID:   customerID,
		CustomerName: req.CustomerName,
		Window:       window,
		PriceQuote:   price,
		Currency:     s.currency(req.Currency),
		Status:       models.StatusPending,
		Notes:        strings.TrimSpace(req.Notes),
	}

	if err := s.repo.CreateBookingIfFree(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncSlotConflict()
			return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, err)
		}
		return nil, err
	}

	metrics.IncBookingsCreated("single", 1)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("resource_id", booking.ResourceID).
		Str("customer_id", booking.CustomerID).
		Msg("Booking created")
	s.publishEvent(events.EventBookingCreated, booking, actor)

	return booking, nil
}

// CreateBroadcast writes one pending copy per matched provider, all sharing a
// fresh group id. Either every copy is stored or none is.
func (s *BookingService) CreateBroadcast(ctx context.Context, actor models.Actor, req BroadcastRequest) (*BroadcastResult, error) {
	window := models.NewWindow(req.Start, req.Duration)
	if err := window.Validate(s.opts.MaxDuration); err != nil {
		return nil, err
	}
	customerID, err := s.customerFor(actor, req.CustomerID)
	if err != nil {
		return nil, err
	}

	match, err := s.matcher.FindCandidates(ctx, req.Category, req.City)
	if err != nil {
		return nil, err
	}

	resourceName := strings.TrimSpace(req.ResourceName)
	if resourceName == "" {
		resourceName = strings.TrimSpace(req.Category)
	}

	groupID := s.newGroupID()
	copies := make([]*models.Booking, 0, len(match.ProviderIDs))
	for _, providerID := range match.ProviderIDs {
		copies = append(copies, &models.Booking{
			ResourceID:   providerID,
			ResourceName: resourceName,
			ProviderID:   providerID,
			CustomerID:   customerID,
			CustomerName: req.CustomerName,
			Window:       window,
			PriceQuote:   req.PriceQuote,
			Currency:     s.currency(req.Currency),
			Status:       models.StatusPending,
			GroupID:      groupID,
			Notes:        strings.TrimSpace(req.Notes),
		})
	}

	if err := s.repo.CreateBookingGroup(ctx, copies); err != nil {
		return nil, fmt.Errorf("broadcast %s: %w", groupID, err)
	}

	metrics.IncBookingsCreated("broadcast", len(copies))
	metrics.ObserveFanout(len(copies))
	s.logger.Info().
		Str("group_id", groupID).
		Str("tier", match.Tier).
		Int("copies", len(copies)).
		Str("customer_id", customerID).
		Msg("Broadcast booking created")
	for _, b := range copies {
		s.publishEvent(events.EventBookingCreated, b, actor)
	}

	return &BroadcastResult{GroupID: groupID, Tier: match.Tier, Bookings: copies}, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !canSee(actor, b) {
		return nil, fmt.Errorf("%w: booking %d", ErrForbidden, id)
	}
	return b, nil
}

// ListForCustomer returns the customer's bookings, latest window first.
func (s *BookingService) ListForCustomer(ctx context.Context, customerID string) ([]*models.Booking, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// ListForProvider returns the bookings a provider must act on, latest window first.
func (s *BookingService) ListForProvider(ctx context.Context, providerID string) ([]*models.Booking, error) {
	return s.repo.ListByProvider(ctx, providerID)
}

// ListGroup returns the copies of a broadcast group the actor is a party to,
// in creation order. Admins see every copy.
func (s *BookingService) ListGroup(ctx context.Context, actor models.Actor, groupID string) ([]*models.Booking, error) {
	siblings, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}

	visible := make([]*models.Booking, 0, len(siblings))
	for _, b := range siblings {
		if canSee(actor, b) {
			visible = append(visible, b)
		}
	}
	if len(visible) == 0 {
		return nil, fmt.Errorf("%w: group %s", ErrForbidden, groupID)
	}
	return visible, nil
}

// CustomerGroups is ListForCustomer folded into one row per group.
func (s *BookingService) CustomerGroups(ctx context.Context, customerID string) ([]models.GroupView, error) {
	bookings, err := s.ListForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return ProjectGroups(bookings), nil
}

// ListByStartRange returns every booking starting in [from, to). Admin only.
func (s *BookingService) ListByStartRange(ctx context.Context, actor models.Actor, from, to time.Time) ([]*models.Booking, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: export requires admin", ErrForbidden)
	}
	return s.repo.ListByStartRange(ctx, from, to)
}

// ChangeStatus moves one booking to status `to` on behalf of actor.
// Cancelling an already cancelled booking succeeds without a write.
func (s *BookingService) ChangeStatus(ctx context.Context, actor models.Actor, id int64, to string) (*models.Booking, error) {
	if !models.IsValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if b.Status == models.StatusCancelled && to == models.StatusCancelled {
		if !canSee(actor, b) {
			return nil, fmt.Errorf("%w: booking %d", ErrForbidden, id)
		}
		return b, nil
	}

	if err := CheckTransition(actor, b, to); err != nil {
		metrics.IncTransitionRejected(rejectionReason(err))
		return nil, err
	}

	change := models.StatusChange{ID: b.ID, From: b.Status, To: to, At: s.stamp(b)}
	if to == models.StatusConfirmed {
		change.Accepted = s.snapshotProvider(ctx, b.ProviderID)
	}

	updated, err := s.repo.UpdateStatus(ctx, change)
	if err != nil {
		return s.resolveRejectedWrite(ctx, b, to, err)
	}

	metrics.IncTransition(b.Status, to)
	s.logger.Info().
		Int64("booking_id", id).
		Str("from", b.Status).
		Str("to", to).
		Str("actor_role", actor.Role).
		Str("actor_id", actor.ID).
		Msg("Booking status changed")

	if to == models.StatusConfirmed {
		s.markProviderBusy(ctx, updated.ProviderID)
	}
	s.publishEvent(events.EventForStatus(to), updated, actor)

	return updated, nil
}

func (s *BookingService) resolveRejectedWrite(ctx context.Context, b *models.Booking, to string, err error) (*models.Booking, error) {
	switch {
	case errors.Is(err, database.ErrStatusChanged):
		if to == models.StatusCancelled {
			if current, getErr := s.repo.GetBooking(ctx, b.ID); getErr == nil && current.Status == models.StatusCancelled {
				return current, nil
			}
		}
		metrics.IncTransitionRejected("stale")
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, err)
	case errors.Is(err, database.ErrGroupAlreadyConfirmed):
		metrics.IncTransitionRejected("group_confirmed")
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, err)
	case errors.Is(err, database.ErrSlotTaken):
		metrics.IncTransitionRejected("slot_taken")
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, err)
	default:
		return nil, mapStoreError(err)
	}
}

// CancelGroupResult reports what a group cancellation touched.
type CancelGroupResult struct {
	GroupID   string  `json:"group_id"`
	Cancelled []int64 `json:"cancelled"`
	Skipped   []int64 `json:"skipped"`
	Failed    []int64 `json:"failed,omitempty"`
}

// CancelGroup cancels every still pending sibling of the group that belongs to
// the customer. Confirmed and finished siblings are left alone. Each sibling is
// written on its own with retries, so a partial failure leaves a valid mix.
func (s *BookingService) CancelGroup(ctx context.Context, actor models.Actor, groupID string) (*CancelGroupResult, error) {
	siblings, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}

	customerID := siblings[0].CustomerID
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleUser:
		if actor.ID == "" || actor.ID != customerID {
			return nil, fmt.Errorf("%w: group %s does not belong to %s", ErrForbidden, groupID, actor.ID)
		}
	default:
		return nil, fmt.Errorf("%w: role %q cannot cancel groups", ErrForbidden, actor.Role)
	}

	result := &CancelGroupResult{GroupID: groupID}
	var errs []error
	for _, b := range siblings {
		if b.CustomerID != customerID || !(b.Status == models.StatusPending || b.Status == models.StatusCancelled) {
			result.Skipped = append(result.Skipped, b.ID)
			continue
		}
		if b.Status == models.StatusCancelled {
			result.Cancelled = append(result.Cancelled, b.ID)
			continue
		}

		cancelled, err := s.cancelSibling(ctx, b)
		switch {
		case err == nil && cancelled:
			result.Cancelled = append(result.Cancelled, b.ID)
		case err == nil:
			result.Skipped = append(result.Skipped, b.ID)
		default:
			result.Failed = append(result.Failed, b.ID)
			errs = append(errs, fmt.Errorf("booking %d: %w", b.ID, err))
		}
	}

	s.logger.Info().
		Str("group_id", groupID).
		Int("cancelled", len(result.Cancelled)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("Group cancellation finished")

	return result, errors.Join(errs...)
}

// cancelSibling reports false when the sibling left pending before it could be cancelled.
func (s *BookingService) cancelSibling(ctx context.Context, b *models.Booking) (bool, error) {
	var updated *models.Booking
	cancelled := false

	err := s.opts.CancelRetry.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.UpdateStatus(ctx, models.StatusChange{
			ID:   b.ID,
			From: models.StatusPending,
			To:   models.StatusCancelled,
			At:   s.stamp(b),
		})
		if err == nil {
			cancelled = true
			return nil
		}
		if errors.Is(err, database.ErrStatusChanged) {
			current, getErr := s.repo.GetBooking(ctx, b.ID)
			if getErr != nil {
				return getErr
			}
			cancelled = current.Status == models.StatusCancelled
			return nil
		}
		if errors.Is(err, database.ErrNotFound) {
			return worker.Permanent(err)
		}
		return err
	})
	if err != nil {
		return false, err
	}

	if updated != nil {
		metrics.IncTransition(models.StatusPending, models.StatusCancelled)
		s.publishEvent(events.EventBookingCancelled, updated, models.Actor{ID: b.CustomerID, Role: models.RoleUser})
	}
	return cancelled, nil
}

func (s *BookingService) snapshotProvider(ctx context.Context, providerID string) *models.ProviderSnapshot {
	p, err := s.directory.GetProvider(ctx, providerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID).Msg("Provider profile unavailable, storing id only")
		return &models.ProviderSnapshot{ID: providerID}
	}
	return p.Snapshot()
}

func (s *BookingService) markProviderBusy(ctx context.Context, providerID string) {
	if s.availability == nil {
		return
	}
	if err := s.availability.SetAvailable(ctx, providerID, false); err != nil {
		s.logger.Error().Err(err).Str("provider_id", providerID).Msg("Failed to clear provider availability")
	}
}

// stamp returns the write time for b, never earlier than its last update.
func (s *BookingService) stamp(b *models.Booking) time.Time {
	now := s.now().UTC()
	if now.Before(b.UpdatedAt) {
		return b.UpdatedAt
	}
	return now
}

func (s *BookingService) currency(requested string) string {
	if c := strings.ToUpper(strings.TrimSpace(requested)); c != "" {
		return c
	}
	return s.opts.Currency
}

func quote(pricePerHour float64, d time.Duration) float64 {
	return math.Round(pricePerHour*d.Hours()*100) / 100
}

func mapStoreError(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	return err
}

func rejectionReason(err error) string {
	if errors.Is(err, ErrForbidden) {
		return "forbidden"
	}
	return "invalid_transition"
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, actor models.Actor) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:     b.ID,
		GroupID:       b.GroupID,
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		ResourceName:  b.ResourceName,
		Status:        b.Status,
		Start:         b.Window.Start,
		ChangedByRole: actor.Role,
		ChangedByID:   actor.ID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}
