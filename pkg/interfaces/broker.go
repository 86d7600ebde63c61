package interfaces

import (
	"codepair/pkg/types"
)

// SessionBroker fans committed session snapshots out to subscribers. Each
// delivery carries the full current document; subscribers decide locally what
// changed by comparing the writer tag and field values. Delivery order across
// writers is not guaranteed; the latest committed snapshot always arrives.
type SessionBroker interface {
	// Publish delivers the snapshot to every subscriber of its session key.
	// Slow subscribers lose the oldest undelivered snapshot, never the newest.
	Publish(session *types.Session) error

	// Subscribe registers interest in one session. The returned cancel
	// function releases the subscription; the channel is closed afterwards
	// and on broker shutdown.
	Subscribe(sessionKey string) (<-chan *types.Session, func(), error)
}
