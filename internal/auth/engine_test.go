package auth

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/vision"
)

// scripted detector + embedder: each tick the harness decides whether a
// face is present and what embedding it produces.
type fakeVision struct {
	hasFace bool
	vec     []float32
}

func (f *fakeVision) DetectFaces(img image.Image) ([]vision.Detection, error) {
	if !f.hasFace {
		return nil, nil
	}
	return []vision.Detection{{Box: vision.Box{X: 0, Y: 0, W: 4, H: 4}, Confidence: 0.9}}, nil
}

func (f *fakeVision) Embed(face image.Image) ([]float32, error) {
	return f.vec, nil
}

type fakeGallery struct {
	samples []vision.Sample
}

func (f *fakeGallery) Samples(ctx context.Context) ([]vision.Sample, error) {
	return f.samples, nil
}

type fakeStore struct {
	users map[int64]*models.User
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

type fakeGateway struct {
	mu           sync.Mutex
	accessLogs   int
	unauthorized int
	err          error
}

func (f *fakeGateway) AppendAccessLog(ctx context.Context, userID int64, status string, img []byte, conf float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessLogs++
	return f.err
}

func (f *fakeGateway) AppendUnauthorized(ctx context.Context, img []byte, conf float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unauthorized++
	return f.err
}

type fakeAlerts struct {
	sent int
	err  error
}

func (f *fakeAlerts) SendUnauthorizedAlert(ctx context.Context, img []byte, conf float32) error {
	f.sent++
	return f.err
}

type fakeMetrics struct {
	success int
	failed  int
}

func (f *fakeMetrics) RecordAttempt(success bool, conf float32, dt time.Duration) {
	if success {
		f.success++
	} else {
		f.failed++
	}
}

// testRig drives the engine with a manual clock at a fixed tick step.
type testRig struct {
	engine  *Engine
	vision  *fakeVision
	gateway *fakeGateway
	alerts  *fakeAlerts
	metrics *fakeMetrics
	clock   time.Time
	step    time.Duration
	frame   *vision.Frame
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	fv := &fakeVision{}
	gallery := &fakeGallery{samples: []vision.Sample{
		{UserID: 1, Embedding: []float32{1, 0}},
		{UserID: 2, Embedding: []float32{0, 1}},
	}}
	store := &fakeStore{users: map[int64]*models.User{
		1: {ID: 1, Name: "Alice", Role: models.RoleAdmin},
		2: {ID: 2, Name: "Bob", Role: models.RoleUser},
	}}
	gateway := &fakeGateway{}
	alerts := &fakeAlerts{}
	metrics := &fakeMetrics{}

	engine, err := NewEngine(EngineConfig{
		AcceptanceThreshold:   0.60,
		RequiredDetectionTime: 3 * time.Second,
		UnauthorizedTime:      10 * time.Second,
		LogThrottleWindow:     60 * time.Second,
		FailedMetricInterval:  2 * time.Second,
	}, fv, fv, gallery, store, gateway, alerts, metrics, nil)
	require.NoError(t, err)

	rig := &testRig{
		engine:  engine,
		vision:  fv,
		gateway: gateway,
		alerts:  alerts,
		metrics: metrics,
		clock:   time.Unix(1700000000, 0),
		step:    100 * time.Millisecond,
	}
	engine.now = func() time.Time { return rig.clock }

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	rig.frame = &vision.Frame{Image: img, JPEG: []byte("jpeg"), CapturedAt: rig.clock}

	return rig
}

// tick advances the clock one step and processes one frame. A nil vec
// means no face in frame.
func (r *testRig) tick(vec []float32) Decision {
	r.clock = r.clock.Add(r.step)
	r.vision.hasFace = vec != nil
	r.vision.vec = vec
	return r.engine.ProcessFrame(context.Background(), r.frame)
}

var (
	faceA    = []float32{0.8, 0}   // matches user 1 at 0.8
	faceB    = []float32{0, 0.8}   // matches user 2 at 0.8
	stranger = []float32{0.3, 0.2} // best score 0.3, below threshold
)

func TestVerifiedAfterRequiredDetectionTime(t *testing.T) {
	rig := newTestRig(t)

	// First tick arms DETECTING; the streak completes when elapsed
	// reaches 3.0s, i.e. 30 ticks later at 0.1s cadence.
	dec := rig.tick(faceA)
	assert.Equal(t, StateDetecting, dec.State)

	for i := 0; i < 29; i++ {
		dec = rig.tick(faceA)
		assert.Equal(t, StateDetecting, dec.State, "tick %d", i+2)
	}

	dec = rig.tick(faceA)
	assert.Equal(t, StateVerified, dec.State)
	assert.Equal(t, int64(1), rig.engine.CurrentUserID())
	assert.Equal(t, "Alice", dec.RecognizedName)
	assert.Equal(t, 1, rig.metrics.success)
	assert.Equal(t, 1, rig.gateway.accessLogs)

	// Sticky: more frames do not disturb the verified state.
	dec = rig.tick(faceA)
	assert.Equal(t, StateVerified, dec.State)
	assert.Equal(t, 1, rig.gateway.accessLogs)
}

func TestIdentitySwitchRestartsTimer(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 15; i++ {
		rig.tick(faceA)
	}
	var dec Decision
	for i := 0; i < 15; i++ {
		dec = rig.tick(faceB)
		assert.Equal(t, StateDetecting, dec.State)
	}

	// Dwell time never sums across identities: 1.5s of A plus 1.5s of
	// B is 1.4s of B, not 3.0s of anyone.
	assert.Equal(t, StateDetecting, dec.State)
	assert.Equal(t, int64(2), rig.engine.CurrentUserID())
	assert.InDelta(t, 1.4, dec.Elapsed.Seconds(), 0.01)
	assert.Equal(t, 0, rig.metrics.success)
}

func TestBelowThresholdDipResetsStreak(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 20; i++ {
		rig.tick(faceA)
	}
	dec := rig.tick(stranger)
	assert.Equal(t, StateWaiting, dec.State)
	assert.Equal(t, time.Duration(0), dec.Elapsed)

	// No partial credit: re-acquiring A starts from zero.
	dec = rig.tick(faceA)
	assert.Equal(t, StateDetecting, dec.State)
	assert.Equal(t, time.Duration(0), dec.Elapsed)
}

func TestFaceLossDropsDetectingToWaiting(t *testing.T) {
	rig := newTestRig(t)

	rig.tick(faceA)
	dec := rig.tick(nil)
	assert.Equal(t, StateWaiting, dec.State)
	assert.Equal(t, "Waiting for face", dec.Status)
	assert.Nil(t, dec.Box)
}

func TestUnauthorizedEscalatesExactlyOnce(t *testing.T) {
	rig := newTestRig(t)

	// Streak arms on the first below-threshold tick; the 10s dwell
	// completes 100 ticks later.
	for i := 0; i < 100; i++ {
		rig.tick(stranger)
		assert.Equal(t, 0, rig.gateway.unauthorized, "tick %d", i+1)
	}

	rig.tick(stranger)
	assert.Equal(t, 1, rig.gateway.unauthorized)
	assert.Equal(t, 1, rig.alerts.sent)

	// The streak cleared on escalation; it must dwell a full 10s again
	// before a second record.
	for i := 0; i < 100; i++ {
		rig.tick(stranger)
	}
	assert.Equal(t, 1, rig.gateway.unauthorized)
	rig.tick(stranger)
	assert.Equal(t, 2, rig.gateway.unauthorized)
	assert.Equal(t, 2, rig.alerts.sent)
}

func TestBrokenStreakNeverEscalates(t *testing.T) {
	rig := newTestRig(t)

	// 9.9s of below-threshold presence, then the face disappears.
	for i := 0; i < 99; i++ {
		rig.tick(stranger)
	}
	rig.tick(nil)

	// A fresh streak starts from zero.
	for i := 0; i < 99; i++ {
		rig.tick(stranger)
	}
	assert.Equal(t, 0, rig.gateway.unauthorized)
	assert.Equal(t, 0, rig.alerts.sent)
}

func TestMatchClearsUnauthorizedStreak(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 99; i++ {
		rig.tick(stranger)
	}
	rig.tick(faceA)
	for i := 0; i < 99; i++ {
		rig.tick(stranger)
	}
	assert.Equal(t, 0, rig.gateway.unauthorized)
}

func TestSuccessLogThrottle(t *testing.T) {
	rig := newTestRig(t)

	verify := func() {
		for i := 0; i < 31; i++ {
			rig.tick(faceA)
		}
		require.Equal(t, StateVerified, rig.engine.State())
	}

	verify()
	assert.Equal(t, 1, rig.gateway.accessLogs)

	// Re-verifying inside the window writes nothing new.
	rig.engine.Reset()
	verify()
	assert.Equal(t, 1, rig.gateway.accessLogs)

	// Outside the window it logs again.
	rig.engine.Reset()
	rig.clock = rig.clock.Add(61 * time.Second)
	verify()
	assert.Equal(t, 2, rig.gateway.accessLogs)
}

func TestNoFaceStaysWaitingForever(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 200; i++ {
		dec := rig.tick(nil)
		assert.Equal(t, StateWaiting, dec.State)
	}
	assert.Equal(t, 0, rig.gateway.accessLogs)
	assert.Equal(t, 0, rig.gateway.unauthorized)
	assert.Equal(t, 0, rig.metrics.success)
	assert.Equal(t, 0, rig.metrics.failed)
}

func TestFailedMetricRateLimited(t *testing.T) {
	rig := newTestRig(t)

	// First below-threshold tick fires immediately (lazy init), then
	// at most one per 2s interval.
	for i := 0; i < 10; i++ {
		rig.tick(stranger)
	}
	assert.Equal(t, 1, rig.metrics.failed)

	for i := 0; i < 31; i++ {
		rig.tick(stranger)
	}
	assert.Equal(t, 3, rig.metrics.failed)
}

func TestGatewayFailureDoesNotAffectState(t *testing.T) {
	rig := newTestRig(t)
	rig.gateway.err = errors.New("db down")

	for i := 0; i < 31; i++ {
		rig.tick(faceA)
	}
	assert.Equal(t, StateVerified, rig.engine.State())

	rig.engine.Reset()
	rig.alerts.err = errors.New("smtp down")
	for i := 0; i < 101; i++ {
		rig.tick(stranger)
	}
	// The escalation was attempted and its failure absorbed.
	assert.Equal(t, 1, rig.gateway.unauthorized)
	assert.Equal(t, StateWaiting, rig.engine.State())
}

func TestResetIsAtomicAndComplete(t *testing.T) {
	rig := newTestRig(t)

	for i := 0; i < 10; i++ {
		rig.tick(faceA)
	}
	rig.engine.Reset()

	assert.Equal(t, StateWaiting, rig.engine.State())
	assert.Equal(t, int64(0), rig.engine.CurrentUserID())

	dec := rig.tick(faceA)
	assert.Equal(t, StateDetecting, dec.State)
	assert.Equal(t, time.Duration(0), dec.Elapsed)
}

func TestEngineConfigValidation(t *testing.T) {
	base := EngineConfig{
		AcceptanceThreshold:   0.6,
		RequiredDetectionTime: 3 * time.Second,
		UnauthorizedTime:      10 * time.Second,
		LogThrottleWindow:     time.Minute,
		FailedMetricInterval:  2 * time.Second,
	}

	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"threshold above one", func(c *EngineConfig) { c.AcceptanceThreshold = 1.5 }},
		{"threshold below minus one", func(c *EngineConfig) { c.AcceptanceThreshold = -1.5 }},
		{"zero detection time", func(c *EngineConfig) { c.RequiredDetectionTime = 0 }},
		{"negative unauthorized time", func(c *EngineConfig) { c.UnauthorizedTime = -time.Second }},
		{"zero throttle window", func(c *EngineConfig) { c.LogThrottleWindow = 0 }},
		{"zero metric interval", func(c *EngineConfig) { c.FailedMetricInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewEngine(base, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.NoError(t, err)
}
