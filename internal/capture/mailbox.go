package capture

import (
	"sync"

	"github.com/your-org/facegate/internal/vision"
)

// Mailbox is a single-slot latest-frame buffer between the camera
// goroutine and the engine tick loop. Recognition must track the live
// subject, so an unread frame is simply overwritten by a newer one.
type Mailbox struct {
	mu      sync.Mutex
	frame   *vision.Frame
	dropped uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Put stores a frame, replacing any unread one.
func (m *Mailbox) Put(f *vision.Frame) {
	m.mu.Lock()
	if m.frame != nil {
		m.dropped++
	}
	m.frame = f
	m.mu.Unlock()
}

// Latest takes the stored frame. Reports false when nothing new has
// arrived since the last call.
func (m *Mailbox) Latest() (*vision.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f, f != nil
}

// Dropped returns how many frames were overwritten before being read.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
