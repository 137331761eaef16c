package models

import "time"

// Provider is a directory entry for someone who can fulfil bookings.
type Provider struct {
	ID          string    `yaml:"id" json:"id"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Email       string    `yaml:"email" json:"email,omitempty"`
	City        string    `yaml:"city" json:"city,omitempty"`
	Categories  []string  `yaml:"categories" json:"categories"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}

func (p *Provider) Snapshot() *ProviderSnapshot {
	return &ProviderSnapshot{ID: p.ID, DisplayName: p.DisplayName, City: p.City}
}

// Listing is a bookable service offering owned by one provider.
type Listing struct {
	ID           string    `yaml:"id" json:"id"`
	OwnerID      string    `yaml:"owner_id" json:"owner_id"`
	Name         string    `yaml:"name" json:"name"`
	Category     string    `yaml:"category" json:"category"`
	City         string    `yaml:"city" json:"city"`
	PricePerHour float64   `yaml:"price_per_hour" json:"price_per_hour"`
	CreatedAt    time.Time `yaml:"-" json:"created_at"`
	UpdatedAt    time.Time `yaml:"-" json:"updated_at"`
}

// Actor is the caller of an engine operation as reported by the identity provider.
type Actor struct {
	ID   string
	Role string
}
