package service

import (
	"errors"

	"localservices/internal/models"
)

var (
	ErrInvalidWindow     = models.ErrInvalidWindow
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrNoProvidersFound  = errors.New("no providers found")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)
