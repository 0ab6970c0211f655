package producer

import (
	"context"
	"errors"

	"github.com/cuemby/kupo/pkg/chain"
)

// ErrIntersectionNotFound is returned when the producer knows none of the
// proposed points.
var ErrIntersectionNotFound = errors.New("intersection not found")

// EventKind discriminates chain-sync events.
type EventKind int

const (
	// RollForward delivers the next block on the producer's chain.
	RollForward EventKind = iota
	// RollBackward instructs the consumer to retract to a point.
	RollBackward
)

// Event is one step of the chain-sync protocol.
type Event struct {
	Kind  EventKind
	Block *chain.Block // set on RollForward
	Point chain.Point  // set on RollBackward
	Tip   chain.Tip
}

// Producer is the upstream block source consumed by the chain consumer.
type Producer interface {
	// FindIntersect proposes candidate points, newest first, and
	// returns the agreed intersection and the producer's tip. It
	// returns ErrIntersectionNotFound when no candidate is on the
	// producer's chain.
	FindIntersect(ctx context.Context, points []chain.Point) (chain.Point, chain.Tip, error)

	// NextEvent blocks until the producer emits the next chain-sync
	// event.
	NextEvent(ctx context.Context) (Event, error)

	// FetchBlock retrieves the full block at the given point, for
	// metadata queries.
	FetchBlock(ctx context.Context, point chain.Point) (*chain.Block, error)

	// Reconnect re-establishes a lost connection, with backoff. The
	// consumer calls it before re-intersecting after a disconnection.
	Reconnect(ctx context.Context) error

	// Close tears the connection down.
	Close() error
}
