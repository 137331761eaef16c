package repository

import (
	"context"
	"sync/atomic"
	"time"

	"localservices/internal/domain"

	"github.com/rs/zerolog"
)

const defaultRecoverAfter = time.Minute

// FailoverAvailabilityStore serves from primary until it fails, then from
// fallback, probing primary again once recoverAfter has passed.
type FailoverAvailabilityStore struct {
	primary      domain.AvailabilityStore
	fallback     domain.AvailabilityStore
	logger       *zerolog.Logger
	recoverAfter time.Duration

	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverAvailabilityStore(primary, fallback domain.AvailabilityStore, logger *zerolog.Logger) *FailoverAvailabilityStore {
	return &FailoverAvailabilityStore{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: defaultRecoverAfter,
		now:          time.Now,
	}
}

func (r *FailoverAvailabilityStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary availability store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverAvailabilityStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > r.recoverAfter
}

func (r *FailoverAvailabilityStore) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary availability store recovered")
	}
}

func (r *FailoverAvailabilityStore) SetAvailable(ctx context.Context, providerID string, available bool) error {
	if r.usePrimary() {
		err := r.primary.SetAvailable(ctx, providerID, available)
		if err == nil {
			r.recovered()
			// keep the fallback warm so a later outage still sees the latest flag
			_ = r.fallback.SetAvailable(ctx, providerID, available)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetAvailable(ctx, providerID, available)
}

func (r *FailoverAvailabilityStore) IsAvailable(ctx context.Context, providerID string) (bool, error) {
	if r.usePrimary() {
		available, err := r.primary.IsAvailable(ctx, providerID)
		if err == nil {
			r.recovered()
			return available, nil
		}
		r.markDown(err)
	}
	return r.fallback.IsAvailable(ctx, providerID)
}
