package auth

import (
	"context"
	"time"

	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/vision"
)

// FrameSource hands out the most recent camera frame. Latest reports
// false when no frame has arrived since the last call.
type FrameSource interface {
	Latest() (*vision.Frame, bool)
}

// Session drives the engine at a fixed tick rate from a frame source.
// One session per camera stream; the engine is only ever ticked from
// this loop, which keeps its state transitions single-threaded.
type Session struct {
	engine     *Engine
	controller *Controller
	source     FrameSource
	tick       time.Duration

	// OnDecision receives every tick's render descriptor (for the UI
	// stream). May be nil.
	OnDecision func(Decision)
}

func NewSession(engine *Engine, controller *Controller, source FrameSource, tick time.Duration) *Session {
	return &Session{
		engine:     engine,
		controller: controller,
		source:     source,
		tick:       tick,
	}
}

// Run ticks until the context is cancelled. Pending commit timers are
// discarded on exit, so no handoff fires after shutdown.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.controller.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()

			frame, ok := s.source.Latest()
			if !ok {
				frame = nil
			}

			dec := s.engine.ProcessFrame(ctx, frame)
			s.controller.Observe(dec)

			if s.OnDecision != nil {
				s.OnDecision(dec)
			}

			observability.FramesProcessed.Inc()
			observability.TickDuration.Observe(time.Since(start).Seconds())
		}
	}
}
