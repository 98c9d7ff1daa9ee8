package service

import "sync"

// senderLocks serializes message handling per sender so window lookups,
// buffer slot checks, and appends never race against a second in-flight
// message from the same sender. Different senders proceed concurrently.
type senderLocks struct {
	mu    sync.Mutex
	slots map[int64]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the sender's lock and returns the release func.
func (l *senderLocks) lock(senderID int64) func() {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[int64]*senderLock)
	}
	entry, ok := l.slots[senderID]
	if !ok {
		entry = &senderLock{}
		l.slots[senderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.slots, senderID)
		}
		l.mu.Unlock()
	}
}
