package flume

import "sync"

type (
	// subscriptionRegistry maps a notification channel name to its one live
	// subscription. It's owned by the Client and shared by every Feed, so
	// all mutation happens under the lock.
	subscriptionRegistry struct {
		mu      sync.Mutex
		entries map[string]*subscriptionEntry
	}

	subscriptionEntry struct {
		token  string
		userID string
		handle Canceler
	}
)

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		entries: make(map[string]*subscriptionEntry),
	}
}

// swap installs a new subscription for the channel, opened by the given
// callback. A previous subscription on the channel is canceled before the
// new one opens, so a repeated subscribe can never leak a live handle nor
// have the stale handle tear down the fresh one. The whole exchange is one
// critical section.
func (r *subscriptionRegistry) swap(channel, token, userID string, open func() (Canceler, error)) (Canceler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[channel]; ok {
		prev.handle.Cancel()
		delete(r.entries, channel)
	}

	handle, err := open()
	if err != nil {
		return nil, err
	}
	r.entries[channel] = &subscriptionEntry{
		token:  token,
		userID: userID,
		handle: handle,
	}

	return handle, nil
}

// remove drops the channel's entry and cancels its handle. Removing a
// channel that was never subscribed is a no-op.
func (r *subscriptionRegistry) remove(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[channel]
	if !ok {
		return
	}
	delete(r.entries, channel)
	entry.handle.Cancel()
}
