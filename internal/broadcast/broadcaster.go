// Package broadcast fans polling cycle results out to registered consumers.
package broadcast

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coin-screener/internal/session"
)

// CycleResult is what the engine publishes once per polling cycle: either a
// consistent metrics mapping or a cycle-level failure.
type CycleResult struct {
	Seq      uint64
	At       time.Time
	Metrics  map[string]session.Metrics
	Err      error
	Scanned  int
	Rejected int
}

// Failed reports whether the cycle was aborted as a whole.
func (r CycleResult) Failed() bool {
	return r.Err != nil
}

// Consumer receives cycle results. Errors are logged by the broadcaster and
// never propagate to the publisher.
type Consumer interface {
	OnCycle(result CycleResult) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(result CycleResult) error

func (f ConsumerFunc) OnCycle(result CycleResult) error {
	return f(result)
}

// Subscription identifies a registered consumer for later removal.
type Subscription struct {
	id uint64
}

type subscriber struct {
	name     string
	consumer Consumer
	pending  chan CycleResult
	done     chan struct{}
}

// Broadcaster delivers cycle results to each subscriber on its own goroutine.
// Publish never blocks: a subscriber that cannot keep up has its oldest
// pending result dropped, which keeps delivery ordered per subscriber while
// isolating slow consumers from the scheduler and from each other.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscriber
	buffer  int
	logger  zerolog.Logger
	closed  bool
	closeWG sync.WaitGroup
}

// New constructs a Broadcaster. Each subscriber gets a pending queue of the
// given depth; depth <= 0 falls back to 16.
func New(buffer int, logger zerolog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		logger: logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Subscribe registers a consumer under a diagnostic name and starts its
// delivery goroutine.
func (b *Broadcaster) Subscribe(name string, consumer Consumer) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		name:     name,
		consumer: consumer,
		pending:  make(chan CycleResult, b.buffer),
		done:     make(chan struct{}),
	}
	b.subs[b.nextID] = sub

	b.closeWG.Add(1)
	go b.deliver(sub)

	return Subscription{id: b.nextID}
}

// Unsubscribe removes a consumer and stops its delivery goroutine. Results
// already queued are discarded.
func (b *Broadcaster) Unsubscribe(s Subscription) {
	b.mu.Lock()
	sub, ok := b.subs[s.id]
	if ok {
		delete(b.subs, s.id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish enqueues the result for every subscriber without blocking.
func (b *Broadcaster) Publish(result CycleResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		for {
			select {
			case sub.pending <- result:
			default:
				// Queue full: drop the oldest pending result so newer
				// cycles still arrive in order.
				select {
				case stale := <-sub.pending:
					b.logger.Warn().
						Str("subscriber", sub.name).
						Uint64("dropped_seq", stale.Seq).
						Msg("subscriber lagging, dropping oldest cycle result")
				default:
				}
				continue
			}
			break
		}
	}
}

// Close stops all delivery goroutines. The broadcaster accepts no further
// publishes afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.closeWG.Wait()
}

func (b *Broadcaster) deliver(sub *subscriber) {
	defer b.closeWG.Done()

	for {
		select {
		case <-sub.done:
			return
		case result := <-sub.pending:
			if err := sub.consumer.OnCycle(result); err != nil {
				b.logger.Error().Err(err).
					Str("subscriber", sub.name).
					Uint64("seq", result.Seq).
					Msg("consumer rejected cycle result")
			}
		}
	}
}
