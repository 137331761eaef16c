package repository

import (
	"context"
	"sync"
)

type MemoryAvailabilityStore struct {
	flags sync.Map
}

func NewMemoryAvailabilityStore() *MemoryAvailabilityStore {
	return &MemoryAvailabilityStore{}
}

func (r *MemoryAvailabilityStore) SetAvailable(_ context.Context, providerID string, available bool) error {
	r.flags.Store(providerID, available)
	return nil
}

func (r *MemoryAvailabilityStore) IsAvailable(_ context.Context, providerID string) (bool, error) {
	val, ok := r.flags.Load(providerID)
	if !ok {
		return true, nil
	}
	return val.(bool), nil
}
