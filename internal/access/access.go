// Package access resolves what an authenticated user may see and change.
//
// Handlers resolve a Decision once per request and consult it; role names are
// not compared anywhere else.
package access

import (
	"context"

	"github.com/foxzi/listmail/internal/models"
)

// Kind is a type of owned object
type Kind string

const (
	KindRecipient Kind = "recipient"
	KindMessage   Kind = "message"
	KindMailing   Kind = "mailing"
)

// Actor is the authenticated user a request acts for
type Actor struct {
	ID      string
	Email   string
	Role    models.Role
	Blocked bool
}

// ActorFromUser builds an actor from a stored user
func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Email: u.Email, Role: u.Role, Blocked: u.Blocked}
}

// Decision holds the resolved permissions of one actor
type Decision struct {
	actor Actor

	CanViewAll     bool // sees objects of every owner
	CanManageUsers bool // lists users and blocks or unblocks them
	canMutateOwn   bool // creates, edits and deletes own objects
	canMutateAny   bool // edits and deletes objects of other owners
	canDispatchAny bool // sends mailings of other owners
}

// Resolve computes the decision for an actor. Blocked actors get nothing.
func Resolve(a Actor) Decision {
	d := Decision{actor: a}
	if a.Blocked || a.ID == "" {
		return d
	}

	switch a.Role {
	case models.RoleSuperuser:
		d.CanViewAll = true
		d.CanManageUsers = true
		d.canMutateOwn = true
		d.canMutateAny = true
		d.canDispatchAny = true
	case models.RoleManager:
		// Managers supervise: they see and send everything but do not edit content.
		d.CanViewAll = true
		d.CanManageUsers = true
		d.canDispatchAny = true
	default:
		d.canMutateOwn = true
	}
	return d
}

// Actor returns the actor the decision was resolved for
func (d Decision) Actor() Actor {
	return d.actor
}

// OwnerScope returns the owner ID list queries must be restricted to, or ""
// when the actor sees all owners.
func (d Decision) OwnerScope() string {
	if d.CanViewAll {
		return ""
	}
	return d.actor.ID
}

// CanView reports whether an object with the given owner is visible
func (d Decision) CanView(ownerID string) bool {
	if d.actor.ID == "" || d.actor.Blocked {
		return false
	}
	return d.CanViewAll || ownerID == d.actor.ID
}

// CanCreate reports whether the actor may create objects of a kind
func (d Decision) CanCreate(kind Kind) bool {
	return d.canMutateOwn
}

// CanMutate reports whether the actor may edit or delete an object
func (d Decision) CanMutate(kind Kind, ownerID string) bool {
	if d.canMutateAny {
		return true
	}
	return d.canMutateOwn && ownerID == d.actor.ID
}

// CanDispatch reports whether the actor may send a mailing
func (d Decision) CanDispatch(ownerID string) bool {
	if d.canDispatchAny {
		return true
	}
	return d.canMutateOwn && ownerID == d.actor.ID
}

// CanBlock reports whether the actor may block or unblock the target user.
// Nobody blocks themselves, and only superusers block other staff.
func (d Decision) CanBlock(target *models.User) bool {
	if !d.CanManageUsers || target == nil || target.ID == d.actor.ID {
		return false
	}
	if target.Role != models.RoleUser && d.actor.Role != models.RoleSuperuser {
		return false
	}
	return true
}

type ctxKey struct{}

// WithDecision stores a decision in the context
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// FromContext returns the decision stored in the context. The zero Decision
// permits nothing.
func FromContext(ctx context.Context) Decision {
	d, _ := ctx.Value(ctxKey{}).(Decision)
	return d
}
