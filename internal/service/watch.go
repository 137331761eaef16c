package service

import (
	"context"

	"localservices/internal/events"
	"localservices/internal/models"

	"github.com/rs/zerolog"
)

// EventSubscriber is the subscribe side of the event bus.
type EventSubscriber interface {
	SubscribeMany(eventTypes []string, handler events.EventHandler) func()
}

// Watcher turns booking events into fresh snapshots for live list views.
type Watcher struct {
	svc    *BookingService
	bus    EventSubscriber
	buffer int
	logger *zerolog.Logger
}

func NewWatcher(svc *BookingService, bus EventSubscriber, buffer int, logger *zerolog.Logger) *Watcher {
	if buffer <= 0 {
		buffer = models.DefaultWatchBuffer
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Watcher{svc: svc, bus: bus, buffer: buffer, logger: logger}
}

// WatchCustomer streams the customer's bookings: the current list first, then
// a new list after every change touching them. The channel closes when ctx ends.
func (w *Watcher) WatchCustomer(ctx context.Context, customerID string) (<-chan []*models.Booking, error) {
	return watch(ctx, w,
		func(p events.BookingEventPayload) bool { return p.CustomerID == customerID },
		func(ctx context.Context) ([]*models.Booking, error) { return w.svc.ListForCustomer(ctx, customerID) },
	)
}

// WatchProvider is WatchCustomer for the provider side.
func (w *Watcher) WatchProvider(ctx context.Context, providerID string) (<-chan []*models.Booking, error) {
	return watch(ctx, w,
		func(p events.BookingEventPayload) bool { return p.ProviderID == providerID },
		func(ctx context.Context) ([]*models.Booking, error) { return w.svc.ListForProvider(ctx, providerID) },
	)
}

// WatchCustomerGroups streams the projected group rows of a customer.
func (w *Watcher) WatchCustomerGroups(ctx context.Context, customerID string) (<-chan []models.GroupView, error) {
	return watch(ctx, w,
		func(p events.BookingEventPayload) bool { return p.CustomerID == customerID },
		func(ctx context.Context) ([]models.GroupView, error) { return w.svc.CustomerGroups(ctx, customerID) },
	)
}

func watch[T any](
	ctx context.Context,
	w *Watcher,
	match func(events.BookingEventPayload) bool,
	load func(context.Context) (T, error),
) (<-chan T, error) {
	// one pending refresh is enough: the reload reads the latest state
	dirty := make(chan struct{}, 1)
	// subscribe before the first load so no change slips between them
	unsubscribe := w.bus.SubscribeMany(events.BookingEventTypes, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if !match(p) {
			return nil
		}
		select {
		case dirty <- struct{}{}:
		default:
		}
		return nil
	})

	initial, err := load(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	out := make(chan T, w.buffer)
	out <- initial

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-dirty:
			}

			snapshot, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn().Err(err).Msg("Live view refresh failed")
				continue
			}
			sendLatest(out, snapshot)
		}
	}()

	return out, nil
}

// sendLatest drops the oldest queued snapshot when the subscriber lags.
func sendLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
