package orders

import (
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
)

// ActorKind classifies who triggered an order change.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAdmin  ActorKind = "admin"
	ActorSystem ActorKind = "system"
)

// Actor is recorded in the status history and on outbox events.
type Actor struct {
	Kind ActorKind
	ID   string
}

// SystemCompensation is the actor used by the compensation worker.
var SystemCompensation = Actor{Kind: ActorSystem, ID: "compensation"}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.ID
}

// IsAdmin reports whether the actor may use operator-only transitions.
func (a Actor) IsAdmin() bool {
	return a.Kind == ActorAdmin || a.Kind == ActorSystem
}

// Ref converts the actor for outbox envelopes.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{ID: a.String(), Kind: string(a.Kind)}
}
