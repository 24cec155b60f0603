package service

import (
	"errors"
	"sync"

	"github.com/civicportal/session-core/internal/models"
)

// Identity errors
var (
	ErrNoPrincipal      = errors.New("no signed-in principal")
	ErrNoRefreshToken   = errors.New("credential has no refresh token")
	ErrPrincipalChanged = errors.New("authority reported a different principal")
)

// principalListeners is the listener registry shared by the identity authorities.
type principalListeners struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(*models.Principal)
}

func (l *principalListeners) add(fn func(*models.Principal)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(*models.Principal))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// notify calls every listener on the caller's goroutine. The caller must not
// hold its own lock.
func (l *principalListeners) notify(p *models.Principal) {
	l.mu.Lock()
	fns := make([]func(*models.Principal), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		var copied *models.Principal
		if p != nil {
			c := *p
			copied = &c
		}
		fn(copied)
	}
}
