package database

import "errors"

var (
	ErrNotFound              = errors.New("record not found")
	ErrSlotTaken             = errors.New("slot already taken")
	ErrStatusChanged         = errors.New("booking status changed concurrently")
	ErrGroupAlreadyConfirmed = errors.New("group already confirmed")
)
