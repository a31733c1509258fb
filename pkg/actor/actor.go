// Package actor identifies who performs an action: the pharmacist or
// technician behind an API request, or the system for background jobs such
// as the PDMP report sweeper.
package actor

import (
	"context"
	"fmt"
)

// SystemID is the actor id recorded for system-initiated operations.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action. Identity and permissions
// are forwarded by the API gateway.
type Actor struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// String returns a representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	if a.Email == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Email)
}

// IsSystem returns true if the actor represents the system. A nil actor is
// treated as the system.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}

type contextKey struct{}

// FromContext retrieves the Actor from the context, or nil.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(contextKey{}).(*Actor)
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, a)
}

// SystemActor returns the Actor used by background jobs.
func SystemActor() *Actor {
	return &Actor{ID: SystemID, Email: "system@medflow.local", Permissions: []string{"*"}}
}

// ID returns the id of the actor in ctx, or "" when there is none.
func ID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.ID
	}
	return ""
}
