package service

import (
	"sync"

	"github.com/civicportal/session-core/internal/models"
)

type activitySubscriber struct {
	id    uint64
	kinds map[models.ActivityKind]struct{}
	fn    func(models.ActivityKind)
}

// ActivityBus is an in-process ActivitySource fed by ActivityPublisher calls.
// Handlers run synchronously on the publishing goroutine.
type ActivityBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []activitySubscriber
}

var (
	_ ActivitySource    = (*ActivityBus)(nil)
	_ ActivityPublisher = (*ActivityBus)(nil)
)

func NewActivityBus() *ActivityBus {
	return &ActivityBus{}
}

func (b *ActivityBus) Subscribe(kinds []models.ActivityKind, fn func(models.ActivityKind)) func() {
	set := make(map[models.ActivityKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, activitySubscriber{id: id, kinds: set, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *ActivityBus) Publish(kind models.ActivityKind) bool {
	if _, ok := models.ParseActivityKind(string(kind)); !ok {
		return false
	}

	b.mu.RLock()
	targets := make([]func(models.ActivityKind), 0, len(b.subs))
	for _, s := range b.subs {
		if _, ok := s.kinds[kind]; ok {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(kind)
	}
	return true
}

// Subscribers returns the number of live subscriptions.
func (b *ActivityBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
