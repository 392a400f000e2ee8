package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/models"
)

// ErrStaleIdentity is surfaced when the committed identity was deleted
// between verification and handoff.
var ErrStaleIdentity = errors.New("user not found after verification")

// IdentityStore resolves enrolled identities by id.
type IdentityStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Scheduler arms a one-shot delayed callback and returns a cancel
// function. Cancelling after the callback has fired is a no-op.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the production Scheduler, backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Controller bridges the tick-driven engine to a one-shot handoff. The
// first tick that observes VERIFIED captures the matched identity and
// arms a delayed commit; later VERIFIED ticks are ignored, so exactly
// one handoff fires per authenticated session.
type Controller struct {
	engine    *Engine
	users     IdentityStore
	scheduler Scheduler
	delay     time.Duration

	// OnVerified fires once per session, when the first VERIFIED tick
	// arms the delayed commit. OnAuthenticated receives the resolved
	// user exactly once per session. OnError receives stale-identity
	// failures. OnLogout fires after Logout resets the session.
	OnVerified      func(userID int64, name string)
	OnAuthenticated func(user *models.User)
	OnError         func(err error)
	OnLogout        func()

	mu          sync.Mutex
	armed       bool
	handedOff   bool
	committedID int64
	cancel      func()

	logger *slog.Logger
}

// NewController wires the session controller around an engine.
func NewController(engine *Engine, users IdentityStore, scheduler Scheduler, delay time.Duration, logger *slog.Logger) *Controller {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		engine:    engine,
		users:     users,
		scheduler: scheduler,
		delay:     delay,
		logger:    logger.With("component", "session"),
	}
}

// Observe inspects one tick's decision. Safe to call every tick.
func (c *Controller) Observe(dec Decision) {
	if dec.State != StateVerified {
		return
	}

	c.mu.Lock()
	if c.armed {
		c.mu.Unlock()
		return
	}
	c.armed = true
	c.committedID = c.engine.CurrentUserID()

	id := c.committedID
	c.cancel = c.scheduler.Schedule(c.delay, func() {
		c.commit(id)
	})
	c.mu.Unlock()

	if c.OnVerified != nil {
		c.OnVerified(id, dec.RecognizedName)
	}
}

// commit resolves the committed identity and fires the handoff. A
// stale identity is a hard error: the session drops back to WAITING
// instead of proceeding with a partial identity.
func (c *Controller) commit(id int64) {
	user, err := c.users.GetUser(context.Background(), id)
	if err != nil || user == nil {
		if err == nil {
			err = ErrStaleIdentity
		} else {
			err = fmt.Errorf("%w: %v", ErrStaleIdentity, err)
		}
		c.logger.Error("commit failed", "user_id", id, "error", err)

		c.mu.Lock()
		c.armed = false
		c.committedID = 0
		c.cancel = nil
		c.mu.Unlock()

		c.engine.Reset()
		if c.OnError != nil {
			c.OnError(err)
		}
		return
	}

	c.mu.Lock()
	if c.handedOff {
		c.mu.Unlock()
		return
	}
	c.handedOff = true
	c.mu.Unlock()

	c.logger.Info("session handoff", "user_id", user.ID, "name", user.Name, "role", user.Role)
	if c.OnAuthenticated != nil {
		c.OnAuthenticated(user)
	}
}

// CommittedUserID returns the identity captured at the first VERIFIED
// observation, or 0 when none is committed.
func (c *Controller) CommittedUserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committedID
}

// Logout cancels any pending commit, resets the engine, and re-arms
// the controller for a fresh session.
func (c *Controller) Logout() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.armed = false
	c.handedOff = false
	c.committedID = 0
	c.cancel = nil
	c.mu.Unlock()

	c.engine.Reset()
	c.logger.Info("session reset")
	if c.OnLogout != nil {
		c.OnLogout()
	}
}

// Stop discards any in-flight commit without firing a handoff. Used
// when the camera session shuts down.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.armed = false
	c.committedID = 0
}
