package service

import (
	"fmt"

	"localservices/internal/models"
)

type edge struct {
	from, to string
}

// stateMachine lists every legal status edge.
var stateMachine = map[edge]bool{
	{models.StatusPending, models.StatusConfirmed}:   true,
	{models.StatusPending, models.StatusDeclined}:    true,
	{models.StatusPending, models.StatusCancelled}:   true,
	{models.StatusConfirmed, models.StatusCompleted}: true,
	{models.StatusConfirmed, models.StatusCancelled}: true,
}

// ownership says which field of the booking must equal the actor id.
type ownership int

const (
	anyRecord ownership = iota
	ownAsCustomer
	ownAsProvider
)

type permissionKey struct {
	role     string
	from, to string
}

// permissions is keyed by (role, from, to). A missing key means the role may not
// take that edge. Admin entries are filled from stateMachine in init.
var permissions = map[permissionKey]ownership{
	{models.RoleUser, models.StatusPending, models.StatusCancelled}: ownAsCustomer,

	{models.RoleProvider, models.StatusPending, models.StatusConfirmed}:   ownAsProvider,
	{models.RoleProvider, models.StatusPending, models.StatusDeclined}:    ownAsProvider,
	{models.RoleProvider, models.StatusConfirmed, models.StatusCompleted}: ownAsProvider,
}

func init() {
	for e := range stateMachine {
		permissions[permissionKey{models.RoleAdmin, e.from, e.to}] = anyRecord
	}
}

// IsLegalTransition reports whether the state machine has an edge from -> to.
func IsLegalTransition(from, to string) bool {
	return stateMachine[edge{from, to}]
}

// CheckTransition validates moving b to status `to` on behalf of actor.
// Illegal edges fail with ErrInvalidTransition before permissions are consulted.
func CheckTransition(actor models.Actor, b *models.Booking, to string) error {
	if !IsLegalTransition(b.Status, to) {
		if models.IsTerminalStatus(b.Status) {
			return fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, b.ID, b.Status)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}

	own, ok := permissions[permissionKey{actor.Role, b.Status, to}]
	if !ok {
		return fmt.Errorf("%w: role %q may not move %s -> %s", ErrForbidden, actor.Role, b.Status, to)
	}
	if !owns(actor, b, own) {
		return fmt.Errorf("%w: booking %d does not belong to %s", ErrForbidden, b.ID, actor.ID)
	}
	return nil
}

func owns(actor models.Actor, b *models.Booking, own ownership) bool {
	switch own {
	case ownAsCustomer:
		return actor.ID != "" && actor.ID == b.CustomerID
	case ownAsProvider:
		return actor.ID != "" && actor.ID == b.ProviderID
	default:
		return true
	}
}

// canSee reports whether actor is a party to b.
func canSee(actor models.Actor, b *models.Booking) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	if actor.ID == "" {
		return false
	}
	return actor.ID == b.CustomerID || actor.ID == b.ProviderID
}
