package models

import "time"

type Booking struct {
	ID               int64             `json:"id"`
	ResourceID       string            `json:"resource_id"`
	ResourceName     string            `json:"resource_name"`
	ProviderID       string            `json:"provider_id"`
	CustomerID       string            `json:"customer_id"`
	CustomerName     string            `json:"customer_name"`
	Window           Window            `json:"window"`
	PriceQuote       float64           `json:"price_quote"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"` // pending, confirmed, declined, cancelled, completed
	GroupID          string            `json:"group_id,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	AcceptedProvider *ProviderSnapshot `json:"accepted_provider,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Version          int64             `json:"version"`
}

// IsActive reports whether the booking still holds its slot.
func (b *Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

// GroupKey is the key the booking folds under: its group id, or its own id for
// single-target requests.
func (b *Booking) GroupKey() string {
	if b.GroupID != "" {
		return b.GroupID
	}
	return singletonKey(b.ID)
}

// ProviderSnapshot is the public profile of the provider that accepted a booking,
// copied onto the record at confirmation time.
type ProviderSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	City        string `json:"city,omitempty"`
}

// GroupView is the customer-facing row for one group of bookings.
type GroupView struct {
	Key       string   `json:"key"`
	GroupID   string   `json:"group_id,omitempty"`
	Status    string   `json:"status"`
	Booking   *Booking `json:"booking"`
	GroupSize int      `json:"group_size"`
}

// StatusChange is a compare-and-set of one booking's status.
type StatusChange struct {
	ID       int64
	From     string
	To       string
	Accepted *ProviderSnapshot
	At       time.Time
}
