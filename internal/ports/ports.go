package ports

import (
	"context"
	"time"

	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// Broker reaches player nodes: request/reply commands plus retained
// presence and state.
type Broker interface {
	// Call sends cmd and decodes the reply body into out. A failed reply is
	// returned as *sonic.ReplyError.
	Call(ctx context.Context, nodeID string, cmd sonic.CommandEnvelope, out any) error
	ListPresence(ctx context.Context) ([]sonic.Presence, error)
	GetPlayerState(ctx context.Context, nodeID string) (sonic.PlayerState, error)
	WatchPlayer(ctx context.Context, nodeID string) (<-chan sonic.PlayerState, <-chan sonic.SessionEvent, <-chan error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}

// StateStore persists the active server choice between commands.
type StateStore interface {
	ActiveServer() (string, bool, error)
	SetActiveServer(id string) error
}
