package discord

import (
	"sync"
)

// reactionBuffer is how many undelivered reactions a watcher holds before
// further ones are dropped.
const reactionBuffer = 16

type waiter struct {
	userID string
	ch     chan string
}

// ReactionWaiters hands reaction-add events to the flows watching a message.
// A watcher stays registered until it is stopped, so reactions that arrive
// while the flow handles an earlier one are queued rather than lost.
type ReactionWaiters struct {
	mu      sync.Mutex
	pending map[string][]*waiter // messageID -> waiters
}

// NewReactionWaiters creates an empty registry.
func NewReactionWaiters() *ReactionWaiters {
	return &ReactionWaiters{pending: make(map[string][]*waiter)}
}

// Watch registers for userID's reactions to messageID. The returned stop
// unregisters the watcher and is safe to call repeatedly.
func (r *ReactionWaiters) Watch(messageID, userID string) (<-chan string, func()) {
	w := &waiter{userID: userID, ch: make(chan string, reactionBuffer)}

	r.mu.Lock()
	r.pending[messageID] = append(r.pending[messageID], w)
	r.mu.Unlock()

	var once sync.Once
	return w.ch, func() {
		once.Do(func() { r.remove(messageID, w) })
	}
}

// Dispatch delivers a reaction to the watchers of messageID registered for
// userID, and reports whether any watcher took it.
func (r *ReactionWaiters) Dispatch(messageID, userID, emoji string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := false
	for _, w := range r.pending[messageID] {
		if w.userID != userID {
			continue
		}
		select {
		case w.ch <- emoji:
			delivered = true
		default:
		}
	}
	return delivered
}

// Len returns the number of registered watchers.
func (r *ReactionWaiters) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ws := range r.pending {
		n += len(ws)
	}
	return n
}

func (r *ReactionWaiters) remove(messageID string, target *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws := r.pending[messageID]
	for i, w := range ws {
		if w == target {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(r.pending, messageID)
	} else {
		r.pending[messageID] = ws
	}
}
