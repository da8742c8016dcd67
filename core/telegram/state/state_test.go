package state

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransitionAndGet(t *testing.T) {
	m := NewManager()
	assert.Equal(t, StateIdle, m.Get(1))
	assert.False(t, m.InProgress(1))

	m.Transition(1, State("awaiting_email"), 0)
	assert.Equal(t, State("awaiting_email"), m.Get(1))
	assert.True(t, m.InProgress(1))
	assert.False(t, m.InProgress(2))

	m.Clear(1)
	assert.Equal(t, StateIdle, m.Get(1))
}

func TestValuesScopedToChat(t *testing.T) {
	m := NewManager()
	m.Transition(1, State("awaiting_otp"), 0)
	m.SetValue(1, "email", "a@b.com")

	v, ok := m.Value(1, "email")
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", v)

	_, ok = m.Value(2, "email")
	assert.False(t, ok)

	m.Clear(1)
	_, ok = m.Value(1, "email")
	assert.False(t, ok)
}

func TestDeadlineExpiresSession(t *testing.T) {
	m := NewManager()
	var fired atomic.Int64
	m.SetOnExpire(func(chatID int64, st State) {
		fired.Store(chatID)
	})

	m.Transition(7, State("awaiting_amount"), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 7 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateIdle, m.Get(7))
}

func TestStaleDeadlineIsIgnoredAfterAdvance(t *testing.T) {
	m := NewManager()
	var fired atomic.Bool
	m.SetOnExpire(func(int64, State) { fired.Store(true) })

	m.Transition(7, State("awaiting_amount"), 10*time.Millisecond)
	m.Transition(7, State("awaiting_description"), 0)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Equal(t, State("awaiting_description"), m.Get(7))
}

func TestClearCancelsDeadline(t *testing.T) {
	m := NewManager()
	var fired atomic.Bool
	m.SetOnExpire(func(int64, State) { fired.Store(true) })

	m.Transition(7, State("awaiting_otp"), 10*time.Millisecond)
	m.Clear(7)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}
