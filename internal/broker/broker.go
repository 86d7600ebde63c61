package broker

import (
	"context"
	"log"
	"sync"

	"codepair/pkg/types"
)

// Broker fans committed session snapshots out to per-session subscribers.
// A single run goroutine owns the subscriber maps, so registration, removal
// and delivery never race. Published snapshots must be treated as immutable
// by subscribers; the store builds a fresh document for every publish.
type Broker struct {
	publishCh     chan *types.Session
	subscribeCh   chan *subscribeRequest
	unsubscribeCh chan *subscription
	shutdownCh    chan struct{}

	// Per-subscriber channel capacity. When a subscriber falls behind, the
	// oldest undelivered snapshot is dropped so the newest always lands;
	// full-state snapshots make the latest delivery sufficient to converge.
	bufferSize int

	running bool
	mu      sync.RWMutex
}

type subscription struct {
	sessionKey string
	ch         chan *types.Session
	cancelOnce sync.Once
}

type subscribeRequest struct {
	sessionKey string
	reply      chan *subscription
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Broker{
		publishCh:     make(chan *types.Session, 1000),
		subscribeCh:   make(chan *subscribeRequest, 100),
		unsubscribeCh: make(chan *subscription, 100),
		shutdownCh:    make(chan struct{}),
		bufferSize:    bufferSize,
	}
}

// Start begins broker processing.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrBrokerAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()

	log.Println("Starting session broker...")
	go b.run(ctx)

	return nil
}

// Stop shuts the broker down. Subscriber channels are closed by the run
// goroutine as part of shutdown.
func (b *Broker) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return ErrBrokerNotRunning
	}
	b.running = false

	log.Println("Stopping session broker...")

	select {
	case <-b.shutdownCh:
		// Already closed
	default:
		close(b.shutdownCh)
	}

	return nil
}

// Publish queues a snapshot for fan-out to the session's subscribers.
func (b *Broker) Publish(session *types.Session) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return ErrBrokerNotRunning
	}
	b.mu.RUnlock()

	select {
	case b.publishCh <- session:
		return nil
	default:
		return ErrPublishChannelFull
	}
}

// Subscribe registers interest in one session key. The returned cancel
// function is idempotent; after it runs (or after broker shutdown) the
// channel is closed by the run goroutine.
func (b *Broker) Subscribe(sessionKey string) (<-chan *types.Session, func(), error) {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return nil, nil, ErrBrokerNotRunning
	}
	b.mu.RUnlock()

	req := &subscribeRequest{
		sessionKey: sessionKey,
		reply:      make(chan *subscription, 1),
	}

	select {
	case b.subscribeCh <- req:
	default:
		return nil, nil, ErrSubscribeChannelFull
	}

	select {
	case sub := <-req.reply:
		cancel := func() {
			sub.cancelOnce.Do(func() {
				select {
				case b.unsubscribeCh <- sub:
				case <-b.shutdownCh:
					// Run goroutine closes all channels on shutdown.
				}
			})
		}
		return sub.ch, cancel, nil
	case <-b.shutdownCh:
		return nil, nil, ErrBrokerNotRunning
	}
}

// run is the main broker loop; sole owner of the subscriber maps.
func (b *Broker) run(ctx context.Context) {
	defer log.Println("Broker processing stopped")

	subscribers := make(map[string]map[*subscription]struct{})

	closeAll := func() {
		for _, subs := range subscribers {
			for sub := range subs {
				close(sub.ch)
			}
		}
	}

	for {
		select {
		case session := <-b.publishCh:
			for sub := range subscribers[session.SessionKey] {
				b.deliver(sub, session)
			}

		case req := <-b.subscribeCh:
			sub := &subscription{
				sessionKey: req.sessionKey,
				ch:         make(chan *types.Session, b.bufferSize),
			}
			if subscribers[req.sessionKey] == nil {
				subscribers[req.sessionKey] = make(map[*subscription]struct{})
			}
			subscribers[req.sessionKey][sub] = struct{}{}
			req.reply <- sub

		case sub := <-b.unsubscribeCh:
			if subs, exists := subscribers[sub.sessionKey]; exists {
				if _, member := subs[sub]; member {
					delete(subs, sub)
					close(sub.ch)
					if len(subs) == 0 {
						delete(subscribers, sub.sessionKey)
					}
				}
			}

		case <-b.shutdownCh:
			closeAll()
			return

		case <-ctx.Done():
			log.Println("Broker context cancelled")
			closeAll()
			return
		}
	}
}

// deliver pushes a snapshot to one subscriber, dropping the oldest queued
// snapshot instead of blocking when the subscriber is behind.
func (b *Broker) deliver(sub *subscription, session *types.Session) {
	select {
	case sub.ch <- session:
		return
	default:
	}

	select {
	case <-sub.ch:
	default:
	}

	select {
	case sub.ch <- session:
	default:
	}
}

// Stats reports the publish queue depth for monitoring. Subscriber maps
// are owned by the run goroutine and are not exposed here.
func (b *Broker) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]int{
		"pending_publishes": len(b.publishCh),
	}
}
