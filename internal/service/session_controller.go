package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/civicportal/session-core/internal/fingerprint"
	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/repository"
)

// FingerprintSource computes the fingerprint of the current device.
type FingerprintSource interface {
	Generate() models.DeviceFingerprint
}

// SessionStore is the tab-scoped key/value store used by the controller.
type SessionStore interface {
	Set(ctx context.Context, key string, value any)
	Get(ctx context.Context, key string, out any) bool
	Clear(ctx context.Context)
}

// Tracker is the inactivity tracker driven by the controller.
type Tracker interface {
	StartTracking(onExpiry, onWarning func())
	StopTracking()
	RecordActivity()
	SecondsUntilExpiry() int
	SessionStart() time.Time
	LastActivity() time.Time
}

// Validator is the periodic credential validator driven by the controller.
type Validator interface {
	StartValidation(onInvalid func())
	StopValidation()
}

// SessionControllerDeps holds the collaborators of a SessionController.
type SessionControllerDeps struct {
	Authority    IdentityAuthority
	Profiles     repository.ProfileRepository
	Fingerprints FingerprintSource
	Store        SessionStore
	Tracker      Tracker
	Validator    Validator
	Events       *EventBus
	Clock        clockwork.Clock
}

var warningSeconds = int(models.WarningLeadTime / time.Second)

// SessionController owns the session state machine:
//
//	UNAUTHENTICATED -> ACTIVE <-> WARNING -> EXPIRED | INVALID | DEVICE_MISMATCH -> LOGGED_OUT -> UNAUTHENTICATED
//
// Every session attempt and every teardown bumps the generation. Callbacks
// and asynchronous results carry the generation they were started with and
// are dropped when it is no longer current, which makes teardown run once
// per session no matter how many triggers race.
type SessionController struct {
	authority    IdentityAuthority
	profiles     repository.ProfileRepository
	fingerprints FingerprintSource
	store        SessionStore
	tracker      Tracker
	validator    Validator
	events       *EventBus
	clock        clockwork.Clock
	log          zerolog.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closed      bool

	state      models.SessionState
	generation uint64
	principal  *models.Principal
	profile    *models.Profile
	enriched   bool

	countdown     int
	countdownTick clockwork.Ticker
	countdownDone chan struct{}
}

var _ SessionLifecycle = (*SessionController)(nil)

func NewSessionController(deps SessionControllerDeps) *SessionController {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Events == nil {
		deps.Events = NewEventBus()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionController{
		authority:    deps.Authority,
		profiles:     deps.Profiles,
		fingerprints: deps.Fingerprints,
		store:        deps.Store,
		tracker:      deps.Tracker,
		validator:    deps.Validator,
		events:       deps.Events,
		clock:        deps.Clock,
		log:          logger.Component("session_controller"),
		ctx:          ctx,
		cancel:       cancel,
		state:        models.StateUnauthenticated,
	}
}

// Start subscribes to principal changes and evaluates the current principal.
func (c *SessionController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.unsubscribe != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.unsubscribe = c.authority.OnPrincipalChanged(c.handlePrincipal)
	c.mu.Unlock()

	c.log.Info().Msg("Session controller started")
	c.handlePrincipal(c.authority.CurrentPrincipal())
}

// Close unsubscribes from the authority and stops every timer. Stored
// session data is left in place.
func (c *SessionController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.stopTimersLocked()
	c.cancel()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.log.Info().Msg("Session controller closed")
}

// Snapshot returns the current observable state.
func (c *SessionController) Snapshot() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := models.SessionSnapshot{
		State:            c.state,
		Enriched:         c.enriched,
		WarningCountdown: c.countdown,
	}
	if c.principal != nil {
		p := *c.principal
		snap.Principal = &p
	}
	if c.profile != nil {
		p := *c.profile
		snap.Profile = &p
	}
	if c.state.IsLive() {
		snap.SessionStart = c.tracker.SessionStart()
		snap.LastActivity = c.tracker.LastActivity()
		snap.SecondsUntilExpiry = c.tracker.SecondsUntilExpiry()
	}
	return snap
}

func (c *SessionController) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ExtendSession counts as user activity and dismisses a pending warning.
func (c *SessionController) ExtendSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsLive() {
		return
	}
	c.tracker.RecordActivity()
	if c.state == models.StateWarning {
		c.stopCountdownLocked()
		c.state = models.StateActive
		c.log.Info().Str("state", c.state.String()).Msg("Session extended")
	}
}

// Logout ends the session at the user's request. With no live session it
// still clears the store and revokes the credential, without an event.
func (c *SessionController) Logout(ctx context.Context) error {
	c.mu.Lock()
	gen := c.generation
	live := c.state.IsLive()
	c.mu.Unlock()

	if live {
		return c.teardown(ctx, gen, models.ReasonUserAction)
	}

	c.store.Clear(ctx)
	if err := c.authority.Revoke(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Failed to revoke credential")
		return fmt.Errorf("failed to revoke credential: %w", err)
	}
	return nil
}

func (c *SessionController) Subscribe(buffer int) (<-chan models.SessionEvent, func()) {
	return c.events.Subscribe(buffer)
}

func (c *SessionController) handlePrincipal(p *models.Principal) {
	if p == nil {
		c.handleSignedOut()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	ctx := c.ctx
	c.mu.Unlock()

	c.establish(ctx, gen, p)
}

// establish enriches the principal with its profile, checks the device and
// starts governance. A newer generation arriving meanwhile wins.
func (c *SessionController) establish(ctx context.Context, gen uint64, p *models.Principal) {
	log := c.log.With().Str("principal", p.ID).Logger()

	profile, err := c.profiles.FetchProfile(ctx, p.ID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			log.Info().Msg("No profile for principal, continuing unenriched")
		} else {
			log.Warn().Err(err).Msg("Failed to fetch profile, continuing unenriched")
		}
		profile = nil
	}

	current := c.fingerprints.Generate()
	var stored models.DeviceFingerprint
	hasStored := c.store.Get(ctx, models.StoreKeyDeviceFingerprint, &stored)

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		log.Debug().Msg("Discarding superseded session attempt")
		return
	}

	if hasStored && !fingerprint.Compare(stored, current) {
		c.principal = p
		c.mu.Unlock()
		log.Warn().
			Str("storedPlatform", stored.Platform).
			Str("currentPlatform", current.Platform).
			Msg("Device fingerprint mismatch")
		c.teardown(ctx, gen, models.ReasonDeviceMismatch)
		return
	}

	fresh := !c.state.IsLive()
	c.principal = p
	c.profile = profile
	c.enriched = profile != nil
	c.stopCountdownLocked()
	c.state = models.StateActive
	c.tracker.StartTracking(
		func() { c.teardown(c.runContext(), gen, models.ReasonTimeout) },
		func() { c.raiseWarning(gen) },
	)
	c.validator.StartValidation(func() { c.teardown(c.runContext(), gen, models.ReasonInvalid) })
	c.mu.Unlock()

	if !fresh {
		log.Debug().Msg("Principal re-confirmed")
		return
	}

	now := c.clock.Now()
	if !hasStored {
		c.store.Set(ctx, models.StoreKeyDeviceFingerprint, current)
	}
	var loginTime int64
	if !c.store.Get(ctx, models.StoreKeyLoginTime, &loginTime) {
		c.store.Set(ctx, models.StoreKeyLoginTime, now.UnixMilli())
	}

	if profile != nil {
		device := models.LoginDevice{UserAgent: current.UserAgent, TimeZone: current.TimeZone}
		if err := c.profiles.RecordLogin(ctx, p.ID, now, device); err != nil {
			log.Warn().Err(err).Msg("Failed to record login on profile")
		}
	}
	log.Info().Bool("enriched", profile != nil).Str("state", models.StateActive.String()).Msg("Session established")
}

func (c *SessionController) handleSignedOut() {
	c.mu.Lock()
	switch {
	case c.state.IsLive():
		c.generation++
		c.stopTimersLocked()
		c.clearSessionLocked()
		c.state = models.StateUnauthenticated
		ctx := c.ctx
		c.mu.Unlock()

		c.store.Clear(ctx)
		c.log.Info().Msg("Principal signed out externally")
	case c.state == models.StateLoggedOut:
		c.state = models.StateUnauthenticated
		c.mu.Unlock()
	case c.state == models.StateUnauthenticated:
		// drop any attempt still resolving its profile
		c.generation++
		c.mu.Unlock()
	default:
		// teardown in progress
		c.mu.Unlock()
	}
}

func (c *SessionController) raiseWarning(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != models.StateActive {
		return
	}
	// activity recorded after the warning timer fired
	if c.tracker.SecondsUntilExpiry() > warningSeconds {
		return
	}
	c.state = models.StateWarning
	c.countdown = warningSeconds

	ticker := c.clock.NewTicker(time.Second)
	done := make(chan struct{})
	c.countdownTick = ticker
	c.countdownDone = done
	go c.runCountdown(gen, ticker, done)

	c.log.Info().Int("secondsRemaining", warningSeconds).Str("state", c.state.String()).Msg("Inactivity warning raised")
	c.events.Emit(models.SessionEvent{
		Type:             models.EventWarningRaised,
		SecondsRemaining: warningSeconds,
		At:               c.clock.Now(),
	})
}

func (c *SessionController) runCountdown(gen uint64, ticker clockwork.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if !c.countdownStep(gen) {
				return
			}
		}
	}
}

// countdownStep decrements the warning countdown, or clears the warning when
// the tracker has seen activity since it was raised.
func (c *SessionController) countdownStep(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state != models.StateWarning {
		return false
	}
	if c.tracker.SecondsUntilExpiry() > warningSeconds {
		c.stopCountdownLocked()
		c.state = models.StateActive
		c.log.Info().Str("state", c.state.String()).Msg("Activity resumed, warning cleared")
		return false
	}
	if c.countdown > 0 {
		c.countdown--
	}
	return true
}

// teardown ends the session of generation gen. It is a no-op for any other
// generation, so concurrent triggers produce a single session_ended.
func (c *SessionController) teardown(ctx context.Context, gen uint64, reason models.EndReason) error {
	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.generation++
	own := c.generation
	c.state = reason.State()
	c.stopTimersLocked()
	c.mu.Unlock()

	log := c.log.With().Str("reason", string(reason)).Logger()
	log.Info().Str("state", reason.State().String()).Msg("Ending session")

	c.store.Clear(ctx)

	var revokeErr error
	if err := c.authority.Revoke(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to revoke credential")
		revokeErr = fmt.Errorf("failed to revoke credential: %w", err)
	}

	c.mu.Lock()
	if own != c.generation {
		// a new session started while revoking
		c.mu.Unlock()
		return revokeErr
	}
	c.events.Emit(models.SessionEvent{
		Type:   models.EventSessionEnded,
		Reason: reason,
		Notice: reason.Notice(),
		At:     c.clock.Now(),
	})
	c.clearSessionLocked()
	c.state = models.StateLoggedOut
	c.mu.Unlock()

	if c.authority.CurrentPrincipal() == nil {
		c.mu.Lock()
		if own == c.generation && c.state == models.StateLoggedOut {
			c.state = models.StateUnauthenticated
		}
		c.mu.Unlock()
	}
	return revokeErr
}

func (c *SessionController) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *SessionController) stopTimersLocked() {
	c.tracker.StopTracking()
	c.validator.StopValidation()
	c.stopCountdownLocked()
}

func (c *SessionController) stopCountdownLocked() {
	if c.countdownDone != nil {
		close(c.countdownDone)
		c.countdownTick.Stop()
		c.countdownDone, c.countdownTick = nil, nil
	}
	c.countdown = 0
}

func (c *SessionController) clearSessionLocked() {
	c.principal = nil
	c.profile = nil
	c.enriched = false
}
