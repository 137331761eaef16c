package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrInvalidWindow = errors.New("invalid booking window")

// Window is the half-open interval [Start, End) a booking occupies.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow derives the end of the window from its start and duration.
func NewWindow(start time.Time, duration time.Duration) Window {
	start = start.UTC()
	return Window{Start: start, End: start.Add(duration)}
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps uses half-open semantics, so back-to-back windows do not overlap.
func (w Window) Overlaps(other Window) bool {
	return other.Start.Before(w.End) && other.End.After(w.Start)
}

// Validate rejects empty, inverted and over-long windows. maxDuration <= 0 disables
// the upper bound.
func (w Window) Validate(maxDuration time.Duration) error {
	if w.Start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidWindow)
	}
	d := w.Duration()
	if d <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidWindow, d)
	}
	if maxDuration > 0 && d > maxDuration {
		return fmt.Errorf("%w: duration %s exceeds maximum %s", ErrInvalidWindow, d, maxDuration)
	}
	return nil
}

func singletonKey(id int64) string {
	return "booking-" + strconv.FormatInt(id, 10)
}
