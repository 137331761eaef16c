package models

import "slices"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	RoleGuest    = "guest"
	RoleUser     = "user"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

const (
	// DefaultCurrency is used when the config does not set one
	DefaultCurrency = "CAD"

	// DefaultMaxDurationHours bounds a single booking and the conflict lookback
	DefaultMaxDurationHours = 12

	// DefaultWatchBuffer is the per-subscriber snapshot buffer
	DefaultWatchBuffer = 1
)

// ActiveStatuses are the statuses that hold a slot.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

func IsActiveStatus(status string) bool {
	return slices.Contains(ActiveStatuses, status)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusDeclined, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func IsValidRole(role string) bool {
	switch role {
	case RoleGuest, RoleUser, RoleProvider, RoleAdmin:
		return true
	}
	return false
}
