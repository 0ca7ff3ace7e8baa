// Package events is the in-process notification fabric between the
// directory adapters, the session manager and the CoA synchronizer.
// Publishing is synchronous: a publisher returns only after every handler
// ran, so callers can rely on cache invalidation having happened.
package events

import "sync"

type ServicePicked struct {
	SubscriberID uint
}

type ServiceStopped struct {
	SubscriberID uint
}

type ServiceBatchStopped struct {
	SubscriberIDs []uint
}

type SessionOpened struct {
	SessionID    string
	SubscriberID *uint
}

type SessionClosed struct {
	SessionID    string
	SubscriberID *uint
}

// Bus fans typed events out to registered handlers. Registration is
// expected at startup; publishing is safe from any goroutine.
type Bus struct {
	mu             sync.RWMutex
	servicePicked  []func(ServicePicked)
	serviceStopped []func(ServiceStopped)
	batchStopped   []func(ServiceBatchStopped)
	sessionOpened  []func(SessionOpened)
	sessionClosed  []func(SessionClosed)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnServicePicked(fn func(ServicePicked)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servicePicked = append(b.servicePicked, fn)
}

func (b *Bus) OnServiceStopped(fn func(ServiceStopped)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serviceStopped = append(b.serviceStopped, fn)
}

func (b *Bus) OnServiceBatchStopped(fn func(ServiceBatchStopped)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchStopped = append(b.batchStopped, fn)
}

func (b *Bus) OnSessionOpened(fn func(SessionOpened)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionOpened = append(b.sessionOpened, fn)
}

func (b *Bus) OnSessionClosed(fn func(SessionClosed)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionClosed = append(b.sessionClosed, fn)
}

func (b *Bus) PublishServicePicked(e ServicePicked) {
	b.mu.RLock()
	handlers := b.servicePicked
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (b *Bus) PublishServiceStopped(e ServiceStopped) {
	b.mu.RLock()
	handlers := b.serviceStopped
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (b *Bus) PublishServiceBatchStopped(e ServiceBatchStopped) {
	b.mu.RLock()
	handlers := b.batchStopped
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (b *Bus) PublishSessionOpened(e SessionOpened) {
	b.mu.RLock()
	handlers := b.sessionOpened
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (b *Bus) PublishSessionClosed(e SessionClosed) {
	b.mu.RLock()
	handlers := b.sessionClosed
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
}
