// Package auth implements the per-frame authentication decision engine
// and the session controller that turns its verified state into a
// one-shot handoff.
package auth

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/vision"
)

// State is the engine's position in one authentication cycle.
type State string

const (
	StateWaiting   State = "WAITING"
	StateDetecting State = "DETECTING"
	StateVerified  State = "VERIFIED"
	StateFailed    State = "FAILED"
)

// Box colors for the render descriptor, state-dependent.
const (
	colorWaiting  = "#95a5a6"
	colorDetect   = "#f1c40f"
	colorVerified = "#2ecc71"
	colorDenied   = "#e74c3c"
)

// Detector finds face bounding boxes in a frame.
type Detector interface {
	DetectFaces(img image.Image) ([]vision.Detection, error)
}

// Embedder turns a face crop into a unit-norm embedding vector.
type Embedder interface {
	Embed(face image.Image) ([]float32, error)
}

// Gallery returns the current set of enrolled embedding samples. The
// engine fetches it fresh each tick and never caches across ticks.
type Gallery interface {
	Samples(ctx context.Context) ([]vision.Sample, error)
}

// PersistenceGateway appends audit records. Failures are absorbed by
// the engine; access decisions never depend on a write succeeding.
type PersistenceGateway interface {
	AppendAccessLog(ctx context.Context, userID int64, status string, image []byte, confidence float32) error
	AppendUnauthorized(ctx context.Context, image []byte, confidence float32) error
}

// AlertDispatcher delivers a security notification for an unauthorized
// streak. Failure is non-fatal.
type AlertDispatcher interface {
	SendUnauthorizedAlert(ctx context.Context, image []byte, confidence float32) error
}

// MetricsSink accepts fire-and-forget attempt records.
type MetricsSink interface {
	RecordAttempt(success bool, confidence float32, detectionTime time.Duration)
}

// EngineConfig holds the decision parameters. Validate rejects values
// that would make the state machine meaningless.
type EngineConfig struct {
	AcceptanceThreshold   float32
	RequiredDetectionTime time.Duration
	UnauthorizedTime      time.Duration
	LogThrottleWindow     time.Duration
	FailedMetricInterval  time.Duration
}

func (c EngineConfig) validate() error {
	if c.AcceptanceThreshold < -1 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance threshold %.2f outside [-1,1]", c.AcceptanceThreshold)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"required detection time", c.RequiredDetectionTime},
		{"unauthorized time", c.UnauthorizedTime},
		{"log throttle window", c.LogThrottleWindow},
		{"failed metric interval", c.FailedMetricInterval},
	}
	for _, e := range durations {
		if e.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", e.name, e.d)
		}
	}
	return nil
}

// Decision is the render-ready outcome of one tick.
type Decision struct {
	State          State          `json:"state"`
	Status         string         `json:"status"`
	Box            *vision.Box    `json:"box,omitempty"`
	BoxColor       string         `json:"box_color"`
	Progress       float64        `json:"progress"`
	Confidence     float32        `json:"confidence"`
	Elapsed        time.Duration  `json:"-"`
	ElapsedSeconds string         `json:"elapsed"`
	ConfidencePct  string         `json:"confidence_pct"`
	RecognizedName string         `json:"recognized_name"`
	FaceSize       string         `json:"face_size"`
	Quality        vision.Quality `json:"quality"`
	UserID         int64          `json:"user_id,omitempty"`
}

// Engine is the per-frame authentication state machine. It is not
// reentrant by design; the mutex exists so Reset can be atomic with
// respect to an in-flight tick, not to allow concurrent ticks.
type Engine struct {
	cfg EngineConfig

	detector Detector
	embedder Embedder
	gallery  Gallery
	users    IdentityStore
	gateway  PersistenceGateway
	alerts   AlertDispatcher
	metrics  MetricsSink

	mu             sync.Mutex
	state          State
	currentUserID  int64
	currentName    string
	detectionStart time.Time
	continuous     time.Duration

	// Success-log throttle: one access log per identity per window.
	lastLog map[int64]time.Time

	// Unauthorized streak: first below-threshold frame and score, held
	// until the streak either breaks or escalates.
	unauthStart time.Time
	unauthImage []byte
	unauthScore float32
	unauthSet   bool

	// Failed-attempt metric throttle, lazily initialized.
	lastFailedMetric time.Time

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine validates the configuration and wires the collaborators.
func NewEngine(cfg EngineConfig, detector Detector, embedder Embedder, gallery Gallery, users IdentityStore, gateway PersistenceGateway, alerts AlertDispatcher, metrics MetricsSink, logger *slog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		detector: detector,
		embedder: embedder,
		gallery:  gallery,
		users:    users,
		gateway:  gateway,
		alerts:   alerts,
		metrics:  metrics,
		state:    StateWaiting,
		lastLog:  make(map[int64]time.Time),
		now:      time.Now,
		logger:   logger.With("component", "engine"),
	}, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentUserID returns the identity the current streak is tracking,
// or 0 when there is none.
func (e *Engine) CurrentUserID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentUserID
}

// ProcessFrame runs one tick of the state machine. A nil frame is the
// "camera gave nothing" case and follows the no-face path.
func (e *Engine) ProcessFrame(ctx context.Context, frame *vision.Frame) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	if frame == nil || frame.Image == nil {
		e.clearUnauthorizedLocked()
		if e.state != StateWaiting && e.state != StateVerified {
			e.toWaitingLocked()
		}
		return e.describeLocked(nil, 0, vision.QualityInactive)
	}

	quality := vision.AssessQuality(frame.Image)

	detections, err := e.detector.DetectFaces(frame.Image)
	if err != nil {
		// Treated like an empty detection: the tick yields no evidence
		// either way.
		e.logger.Warn("face detection failed", "error", err)
		detections = nil
	}

	if len(detections) == 0 {
		e.clearUnauthorizedLocked()
		if e.state != StateWaiting && e.state != StateVerified {
			e.toWaitingLocked()
		}
		return e.describeLocked(nil, 0, quality)
	}

	// Face selection policy: first detected box, always.
	box := detections[0].Box

	userID, score, matched := e.matchLocked(ctx, frame, box)

	if matched && score >= e.cfg.AcceptanceThreshold {
		e.handleMatchLocked(ctx, frame, now, userID, score)
	} else {
		e.handleMissLocked(ctx, frame, now, score)
	}

	return e.describeLocked(&box, score, quality)
}

// matchLocked crops, embeds, and scans the full gallery. Every stored
// sample is compared; the highest single-sample score wins.
func (e *Engine) matchLocked(ctx context.Context, frame *vision.Frame, box vision.Box) (int64, float32, bool) {
	face := vision.CropFace(frame.Image, box)
	if face == nil {
		return 0, 0, false
	}

	embedding, err := e.embedder.Embed(face)
	if err != nil {
		e.logger.Warn("embedding failed", "error", err)
		return 0, 0, false
	}

	samples, err := e.gallery.Samples(ctx)
	if err != nil {
		e.logger.Warn("gallery fetch failed", "error", err)
		return 0, 0, false
	}

	return vision.Match(embedding, samples)
}

func (e *Engine) handleMatchLocked(ctx context.Context, frame *vision.Frame, now time.Time, userID int64, score float32) {
	e.clearUnauthorizedLocked()

	switch e.state {
	case StateWaiting:
		e.state = StateDetecting
		e.detectionStart = now
		e.continuous = 0
		e.setIdentityLocked(ctx, userID)

	case StateDetecting:
		if userID != e.currentUserID {
			// A different person in frame restarts the clock; dwell
			// time never sums across identities.
			e.detectionStart = now
			e.continuous = 0
			e.setIdentityLocked(ctx, userID)
			return
		}
		e.continuous = now.Sub(e.detectionStart)
		if e.continuous >= e.cfg.RequiredDetectionTime {
			e.state = StateVerified
			e.logger.Info("identity verified",
				"user_id", userID,
				"confidence", score,
				"detection_time", e.continuous)
			if e.metrics != nil {
				e.metrics.RecordAttempt(true, score, e.continuous)
			}
			e.logSuccessLocked(ctx, frame, now, userID, score)
		}

	case StateVerified:
		// Sticky until the session controller or logout resets us.

	case StateFailed:
		// Host-driven terminal state; frames do not revive it.
	}
}

func (e *Engine) handleMissLocked(ctx context.Context, frame *vision.Frame, now time.Time, score float32) {
	if e.state == StateDetecting {
		e.toWaitingLocked()
	}

	// Unauthorized streak: arm on the first below-threshold tick,
	// escalate once after a full unbroken dwell, then clear so a fresh
	// streak is needed before it can fire again.
	if !e.unauthSet {
		e.unauthSet = true
		e.unauthStart = now
		e.unauthImage = frame.JPEG
		e.unauthScore = score
	} else if now.Sub(e.unauthStart) >= e.cfg.UnauthorizedTime {
		e.escalateLocked(ctx)
	}

	// Failed-attempt metric, at most one per interval regardless of
	// identity. The zero time means no failed metric has fired yet.
	if e.metrics != nil {
		if e.lastFailedMetric.IsZero() || now.Sub(e.lastFailedMetric) >= e.cfg.FailedMetricInterval {
			e.lastFailedMetric = now
			e.metrics.RecordAttempt(false, score, 0)
		}
	}
}

// escalateLocked commits one unauthorized record and one alert using
// the first frame of the streak, then clears the streak.
func (e *Engine) escalateLocked(ctx context.Context) {
	image := e.unauthImage
	score := e.unauthScore
	e.clearUnauthorizedLocked()

	e.logger.Warn("unauthorized presence escalated", "confidence", score)

	if err := e.gateway.AppendUnauthorized(ctx, image, score); err != nil {
		e.logger.Error("unauthorized record write failed", "error", err)
	}
	if err := e.alerts.SendUnauthorizedAlert(ctx, image, score); err != nil {
		e.logger.Error("unauthorized alert failed", "error", err)
	}
}

// logSuccessLocked writes one access log for the identity unless one
// was written inside the throttle window.
func (e *Engine) logSuccessLocked(ctx context.Context, frame *vision.Frame, now time.Time, userID int64, score float32) {
	if last, ok := e.lastLog[userID]; ok && now.Sub(last) < e.cfg.LogThrottleWindow {
		return
	}
	e.lastLog[userID] = now

	if err := e.gateway.AppendAccessLog(ctx, userID, "success", frame.JPEG, score); err != nil {
		e.logger.Error("access log write failed", "user_id", userID, "error", err)
	}
}

func (e *Engine) setIdentityLocked(ctx context.Context, userID int64) {
	e.currentUserID = userID
	e.currentName = ""
	if e.users == nil {
		return
	}
	if u, err := e.users.GetUser(ctx, userID); err == nil && u != nil {
		e.currentName = u.Name
	}
}

func (e *Engine) toWaitingLocked() {
	e.state = StateWaiting
	e.continuous = 0
	e.detectionStart = time.Time{}
	e.currentUserID = 0
	e.currentName = ""
}

func (e *Engine) clearUnauthorizedLocked() {
	e.unauthSet = false
	e.unauthStart = time.Time{}
	e.unauthImage = nil
	e.unauthScore = 0
}

// Reset returns the engine to WAITING as one atomic step. No tick can
// observe a half-reset session. The success-log throttle survives the
// reset on purpose: the throttle bounds audit volume per identity, not
// per engine session.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toWaitingLocked()
	e.clearUnauthorizedLocked()
	e.lastFailedMetric = time.Time{}
}

// Fail moves the engine to the FAILED state. Frame processing never
// sets this on its own; it exists for host-driven timeout logic.
func (e *Engine) Fail() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateFailed
}

func (e *Engine) describeLocked(box *vision.Box, score float32, quality vision.Quality) Decision {
	d := Decision{
		State:      e.state,
		Box:        box,
		Confidence: score,
		Elapsed:    e.continuous,
		Quality:    quality,
		UserID:     e.currentUserID,
	}

	switch e.state {
	case StateWaiting:
		if box == nil {
			d.Status = "Waiting for face"
		} else {
			d.Status = "Face not recognized"
		}
		d.BoxColor = colorWaiting
		if box != nil {
			d.BoxColor = colorDenied
		}
	case StateDetecting:
		d.Status = "Verifying..."
		if e.currentName != "" {
			d.Status = "Verifying " + e.currentName
		}
		d.BoxColor = colorDetect
		d.RecognizedName = e.currentName
		d.Progress = float64(e.continuous) / float64(e.cfg.RequiredDetectionTime)
		if d.Progress > 1 {
			d.Progress = 1
		}
	case StateVerified:
		d.Status = "Access granted: " + e.currentName
		d.BoxColor = colorVerified
		d.RecognizedName = e.currentName
		d.Progress = 1
	case StateFailed:
		d.Status = "Access denied"
		d.BoxColor = colorDenied
	}

	d.ConfidencePct = fmt.Sprintf("%.0f%%", score*100)
	d.ElapsedSeconds = fmt.Sprintf("%.1fs", e.continuous.Seconds())
	if box != nil {
		d.FaceSize = fmt.Sprintf("%dx%d", box.W, box.H)
	}
	return d
}
