package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_DebouncesBurstToOnePersist(t *testing.T) {
	var persists atomic.Int64
	s := NewScheduler(50*time.Millisecond, func() { persists.Add(1) })
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.Schedule()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), persists.Load())
}

func TestScheduler_SeparateBurstsPersistSeparately(t *testing.T) {
	var persists atomic.Int64
	s := NewScheduler(20*time.Millisecond, func() { persists.Add(1) })
	defer s.Stop()

	s.Schedule()
	time.Sleep(60 * time.Millisecond)
	s.Schedule()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, int64(2), persists.Load())
}

func TestScheduler_FlushCancelsPendingTimer(t *testing.T) {
	var persists atomic.Int64
	s := NewScheduler(30*time.Millisecond, func() { persists.Add(1) })
	defer s.Stop()

	s.Schedule()
	s.Flush()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(1), persists.Load(), "flush persists once; the timer must not fire again")
}

func TestScheduler_FlushWithoutScheduleStillPersists(t *testing.T) {
	var persists atomic.Int64
	s := NewScheduler(30*time.Millisecond, func() { persists.Add(1) })
	defer s.Stop()

	s.Flush()
	assert.Equal(t, int64(1), persists.Load())
}

func TestScheduler_StopPreventsFurtherWork(t *testing.T) {
	var persists atomic.Int64
	s := NewScheduler(10*time.Millisecond, func() { persists.Add(1) })

	s.Schedule()
	s.Stop()
	s.Schedule()
	s.Flush()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, persists.Load())
}
