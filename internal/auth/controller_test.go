package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/vision"
)

// manualScheduler captures scheduled callbacks so tests control when
// the commit fires.
type manualScheduler struct {
	scheduled []func()
	cancelled int
}

func (s *manualScheduler) Schedule(d time.Duration, fn func()) func() {
	s.scheduled = append(s.scheduled, fn)
	return func() { s.cancelled++ }
}

func (s *manualScheduler) fire() {
	for _, fn := range s.scheduled {
		fn()
	}
	s.scheduled = nil
}

func newControllerRig(t *testing.T) (*testRig, *Controller, *manualScheduler, *fakeStore) {
	t.Helper()
	rig := newTestRig(t)
	store := &fakeStore{users: map[int64]*models.User{
		1: {ID: 1, Name: "Alice", Role: models.RoleAdmin},
	}}
	sched := &manualScheduler{}
	ctrl := NewController(rig.engine, store, sched, time.Second, nil)
	return rig, ctrl, sched, store
}

// driveToVerified ticks the engine until it reports VERIFIED, feeding
// every decision to the controller like the session loop does.
func driveToVerified(t *testing.T, rig *testRig, ctrl *Controller) {
	t.Helper()
	for i := 0; i < 31; i++ {
		dec := rig.tick(faceA)
		ctrl.Observe(dec)
	}
	require.Equal(t, StateVerified, rig.engine.State())
}

func TestCommitFiresExactlyOnce(t *testing.T) {
	rig, ctrl, sched, _ := newControllerRig(t)

	var handoffs []*models.User
	ctrl.OnAuthenticated = func(u *models.User) { handoffs = append(handoffs, u) }

	driveToVerified(t, rig, ctrl)

	// Many VERIFIED ticks observed before the delayed commit fires,
	// still exactly one scheduled callback.
	for i := 0; i < 10; i++ {
		ctrl.Observe(rig.tick(faceA))
	}
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, int64(1), ctrl.CommittedUserID())

	sched.fire()

	require.Len(t, handoffs, 1)
	assert.Equal(t, "Alice", handoffs[0].Name)
	assert.Equal(t, models.RoleAdmin, handoffs[0].Role)
}

func TestSessionEventHooks(t *testing.T) {
	rig, ctrl, sched, _ := newControllerRig(t)

	type verifiedEvent struct {
		id   int64
		name string
	}
	var verified []verifiedEvent
	var logouts int
	ctrl.OnVerified = func(id int64, name string) {
		verified = append(verified, verifiedEvent{id, name})
	}
	ctrl.OnLogout = func() { logouts++ }

	driveToVerified(t, rig, ctrl)

	// Only the arming tick announces verification; later VERIFIED
	// ticks stay silent.
	for i := 0; i < 10; i++ {
		ctrl.Observe(rig.tick(faceA))
	}
	require.Len(t, verified, 1)
	assert.Equal(t, int64(1), verified[0].id)
	assert.Equal(t, "Alice", verified[0].name)
	assert.Equal(t, 0, logouts)

	sched.fire()
	ctrl.Logout()
	assert.Equal(t, 1, logouts)

	// A fresh session announces verification again.
	driveToVerified(t, rig, ctrl)
	require.Len(t, verified, 2)
}

func TestStaleIdentityIsHardError(t *testing.T) {
	rig, ctrl, sched, store := newControllerRig(t)

	var handoffs int
	var gotErr error
	ctrl.OnAuthenticated = func(u *models.User) { handoffs++ }
	ctrl.OnError = func(err error) { gotErr = err }

	driveToVerified(t, rig, ctrl)

	// The user is deleted between verification and commit.
	delete(store.users, 1)
	sched.fire()

	assert.Equal(t, 0, handoffs)
	require.Error(t, gotErr)
	assert.ErrorIs(t, gotErr, ErrStaleIdentity)

	// The session returns to WAITING rather than proceeding with a
	// partial identity.
	assert.Equal(t, StateWaiting, rig.engine.State())
	assert.Equal(t, int64(0), ctrl.CommittedUserID())
}

func TestLogoutResetsSession(t *testing.T) {
	rig, ctrl, sched, _ := newControllerRig(t)

	var handoffs int
	ctrl.OnAuthenticated = func(u *models.User) { handoffs++ }

	driveToVerified(t, rig, ctrl)
	sched.fire()
	require.Equal(t, 1, handoffs)

	ctrl.Logout()
	assert.Equal(t, StateWaiting, rig.engine.State())
	assert.Equal(t, int64(0), ctrl.CommittedUserID())

	// A fresh session can authenticate again after logout.
	driveToVerified(t, rig, ctrl)
	sched.fire()
	assert.Equal(t, 2, handoffs)
}

func TestStopCancelsPendingCommit(t *testing.T) {
	rig, ctrl, sched, _ := newControllerRig(t)

	var handoffs int
	ctrl.OnAuthenticated = func(u *models.User) { handoffs++ }

	driveToVerified(t, rig, ctrl)
	require.Len(t, sched.scheduled, 1)

	ctrl.Stop()
	assert.Equal(t, 1, sched.cancelled)
	assert.Equal(t, int64(0), ctrl.CommittedUserID())
}

func TestTimerSchedulerCancel(t *testing.T) {
	fired := make(chan struct{}, 1)
	cancel := TimerScheduler{}.Schedule(10*time.Millisecond, func() {
		fired <- struct{}{}
	})
	cancel()

	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionLoopTicksEngine(t *testing.T) {
	rig, ctrl, _, _ := newControllerRig(t)
	// Real wall-clock for the loop test.
	rig.engine.now = time.Now

	src := &staticSource{frame: rig.frame}
	rig.vision.hasFace = false

	var decisions int
	sess := NewSession(rig.engine, ctrl, src, time.Millisecond)
	sess.OnDecision = func(dec Decision) {
		decisions++
		assert.Equal(t, StateWaiting, dec.State)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sess.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, decisions, 0)
}

type staticSource struct {
	frame *vision.Frame
}

func (s *staticSource) Latest() (*vision.Frame, bool) {
	return s.frame, true
}
