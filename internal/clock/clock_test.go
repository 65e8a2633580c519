package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	clk.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clk.Now())
}

func TestFake_TimersFireInDueOrder(t *testing.T) {
	clk := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	var fired []string
	clk.AfterFunc(30*time.Second, func() { fired = append(fired, "second") })
	clk.AfterFunc(10*time.Second, func() { fired = append(fired, "first") })
	clk.AfterFunc(2*time.Minute, func() { fired = append(fired, "late") })

	clk.Advance(time.Minute)
	assert.Equal(t, []string{"first", "second"}, fired)

	clk.Advance(time.Minute)
	assert.Equal(t, []string{"first", "second", "late"}, fired)
}

func TestFake_ClockReadsTimerDueTimeWhileFiring(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	var observed time.Time
	clk.AfterFunc(10*time.Second, func() { observed = clk.Now() })

	clk.Advance(time.Minute)
	assert.Equal(t, start.Add(10*time.Second), observed)
}

func TestFake_StoppedTimerDoesNotFire(t *testing.T) {
	clk := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	fired := false
	timer := clk.AfterFunc(10*time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(time.Minute)
	assert.False(t, fired)
}

func TestFake_CallbackMayScheduleFollowupTimer(t *testing.T) {
	clk := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	var fired []string
	clk.AfterFunc(10*time.Second, func() {
		fired = append(fired, "outer")
		clk.AfterFunc(10*time.Second, func() { fired = append(fired, "inner") })
	})

	// A follow-up due inside the same advance window fires during it.
	clk.Advance(time.Minute)
	assert.Equal(t, []string{"outer", "inner"}, fired)
}

func TestReal_AfterFuncFires(t *testing.T) {
	clk := Real{}

	done := make(chan struct{})
	clk.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
