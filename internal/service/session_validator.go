package service

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/models"
)

// SessionValidator periodically forces the identity authority to re-confirm
// the credential. Each check runs on its own goroutine so a slow authority
// never delays the next tick.
type SessionValidator struct {
	clock     clockwork.Clock
	authority IdentityAuthority
	log       zerolog.Logger

	mu         sync.Mutex
	running    bool
	generation uint64
	ticker     clockwork.Ticker
	cancel     context.CancelFunc
}

func NewSessionValidator(clock clockwork.Clock, authority IdentityAuthority) *SessionValidator {
	return &SessionValidator{
		clock:     clock,
		authority: authority,
		log:       logger.Component("session_validator"),
	}
}

// StartValidation begins checking every ValidationInterval. onInvalid is
// called once for every failed check. A running validation is replaced.
func (v *SessionValidator) StartValidation(onInvalid func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stopLocked()
	v.generation++
	gen := v.generation

	ctx, cancel := context.WithCancel(context.Background())
	ticker := v.clock.NewTicker(models.ValidationInterval)
	v.cancel = cancel
	v.ticker = ticker
	v.running = true

	go v.loop(ctx, ticker, gen, onInvalid)
}

// StopValidation stops the ticker. Checks still in flight are discarded.
func (v *SessionValidator) StopValidation() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
}

func (v *SessionValidator) IsRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

// ValidateSession performs a single synchronous check.
func (v *SessionValidator) ValidateSession(ctx context.Context) bool {
	if err := v.authority.ForceRefresh(ctx); err != nil {
		v.log.Warn().Err(err).Msg("Session validation failed")
		return false
	}
	return true
}

func (v *SessionValidator) stopLocked() {
	if !v.running {
		return
	}
	v.running = false
	v.generation++
	v.cancel()
	v.ticker.Stop()
	v.cancel, v.ticker = nil, nil
}

func (v *SessionValidator) loop(ctx context.Context, ticker clockwork.Ticker, gen uint64, onInvalid func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// select picks at random when both are ready
			if ctx.Err() != nil {
				return
			}
			go v.check(ctx, gen, onInvalid)
		}
	}
}

func (v *SessionValidator) current(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running && gen == v.generation
}

func (v *SessionValidator) check(ctx context.Context, gen uint64, onInvalid func()) {
	if !v.current(ctx, gen) {
		return
	}
	err := v.authority.ForceRefresh(ctx)
	if err == nil || !v.current(ctx, gen) {
		return
	}

	v.log.Warn().Err(err).Msg("Session validation failed")
	if onInvalid != nil {
		onInvalid()
	}
}
