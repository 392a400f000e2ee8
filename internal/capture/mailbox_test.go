package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/facegate/internal/vision"
)

func TestMailboxLatestWins(t *testing.T) {
	m := NewMailbox()

	_, ok := m.Latest()
	assert.False(t, ok)

	first := &vision.Frame{CapturedAt: time.Unix(1, 0)}
	second := &vision.Frame{CapturedAt: time.Unix(2, 0)}
	m.Put(first)
	m.Put(second)

	got, ok := m.Latest()
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, uint64(1), m.Dropped())

	// The slot is consumed; the same frame is never delivered twice.
	_, ok = m.Latest()
	assert.False(t, ok)
}
