// Package eventbus implements the per-session event bus (spec 4.5),
// grounded on the teacher's DebateOrchestrator.Subscribe/Unsubscribe/
// broadcast (pkg/core/debate/orchestrator.go lines 71-129): a subscriber
// channel set, snapshot-then-live delivery, non-blocking send-or-drop for
// slow subscribers, and -- generalizing past what the teacher built -- a
// bounded per-subscriber buffer with a terminal overflow event (spec 4.5,
// the one piece of behavior the teacher's unbounded silent-drop select
// does not have).
package eventbus

import (
	"sync"
)

const defaultBufferSize = 256

// Event is the envelope delivered to subscribers. Kind is one of
// step_start, step_progress, step_complete, hitl_required,
// workflow_complete, or buffer_overflow (the bus's own terminal event on a
// dropped subscriber).
type Event struct {
	Kind string
	Data any
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Bus is one session's event bus.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	history     []Event
	terminal    bool
}

func New() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Subscribe registers a new listener, delivering a snapshot of history
// (spec 4.5 "late subscriber snapshot") followed by all subsequent live
// events. The returned function unsubscribes and releases the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	// One slot past defaultBufferSize is held back for the terminal
	// buffer_overflow event, so it always fits.
	ch := make(chan Event, defaultBufferSize+1)
	sub := &subscriber{ch: ch}
	b.subscribers[id] = sub

	for _, ev := range b.history {
		if len(ch) >= defaultBufferSize {
			b.dropLocked(id, sub)
		} else {
			ch <- ev
		}
		if sub.closed {
			break
		}
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(b.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// Publish appends ev to history and delivers it to every live subscriber,
// in step-index order within each subscriber stream (spec 4.4's event
// ordering invariant is preserved because callers invoke Publish
// synchronously in step order).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminal {
		return
	}
	b.history = append(b.history, ev)

	for id, sub := range b.subscribers {
		if sub.closed {
			continue
		}
		if len(sub.ch) >= defaultBufferSize {
			b.dropLocked(id, sub)
			continue
		}
		sub.ch <- ev
	}
}

// dropLocked delivers a terminal buffer_overflow event into the subscriber's
// reserved slot and removes the slow subscriber. Caller must hold b.mu.
func (b *Bus) dropLocked(id int, sub *subscriber) {
	if sub.closed {
		return
	}
	sub.ch <- Event{Kind: "buffer_overflow"}
	sub.closed = true
	close(sub.ch)
	delete(b.subscribers, id)
}

// Terminate marks the bus closed after delivering a final event; no
// further Publish calls are accepted.
func (b *Bus) Terminate(final Event) {
	b.Publish(final)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminal = true
}
