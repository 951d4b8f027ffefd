// Package notifier fans out change pings to the relay's SSE streams.
// Listeners receive an empty struct when the relay's state moved and
// re-read whatever they render.
package notifier

import "sync"

// Notifier broadcasts update pings to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	closed    bool
	listeners map[chan struct{}]struct{}
}

// New creates an empty Notifier.
func New() *Notifier {
	return &Notifier{listeners: make(map[chan struct{}]struct{})}
}

// Subscribe returns a channel that receives pings. Callers must
// Unsubscribe when done. After Close the returned channel is already
// closed.
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	n.listeners[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[ch]; !ok {
		return
	}
	delete(n.listeners, ch)
	close(ch)
}

// Broadcast pings every listener without blocking. A listener with a
// pending ping catches up on its next read.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for ch := range n.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Count reports active listeners.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Close drops all listeners and closes their channels. Further
// Subscribe calls return closed channels so streams end promptly.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.listeners {
		close(ch)
	}
	n.listeners = map[chan struct{}]struct{}{}
}
