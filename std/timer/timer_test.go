package timer_test

import (
	"testing"
	"time"

	"github.com/rtp-go/rtp/std/timer"
	tu "github.com/rtp-go/rtp/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestClock(t *testing.T) {
	tm := timer.NewDummyTimer()
	require.Equal(t, time.Unix(0, 0).UTC(), tm.Now())
	tm.MoveForward(10 * time.Second)
	require.Equal(t, time.Unix(10, 0).UTC(), tm.Now())
	tm.MoveForward(50 * time.Second)
	require.Equal(t, time.Unix(60, 0).UTC(), tm.Now())
}

func TestSchedule(t *testing.T) {
	tm := timer.NewDummyTimer()
	val := 0
	tm.Schedule(10*time.Second, func() {
		val = 1
	})
	require.Equal(t, 0, val)
	tm.MoveForward(10 * time.Second)
	require.Equal(t, 1, val)

	order := []int{}
	tm.Schedule(10*time.Second, func() { order = append(order, 1) })
	tm.Schedule(20*time.Second, func() { order = append(order, 2) })
	tm.Schedule(15*time.Second, func() { order = append(order, 3) })
	tm.MoveForward(11 * time.Second)
	require.Equal(t, []int{1}, order)
	tm.MoveForward(5 * time.Second)
	require.Equal(t, []int{1, 3}, order)
	tm.MoveForward(5 * time.Second)
	require.Equal(t, []int{1, 3, 2}, order)
	require.Equal(t, 0, tm.Pending())
}

func TestRearmFromCallback(t *testing.T) {
	tm := timer.NewDummyTimer()
	fired := 0
	var arm func()
	arm = func() {
		tm.Schedule(time.Second, func() {
			fired++
			arm()
		})
	}
	arm()
	tm.MoveForward(3500 * time.Millisecond)
	require.Equal(t, 3, fired)
	require.Equal(t, 1, tm.Pending())
}

func TestCancel(t *testing.T) {
	tm := timer.NewDummyTimer()
	val := 0
	cancel := tm.Schedule(10*time.Second, func() {
		val = 1
	})
	require.NoError(t, cancel())
	require.ErrorIs(t, cancel(), timer.ErrCancelled)
	tm.MoveForward(11 * time.Second)
	require.Equal(t, 0, val)
}

func TestWallTimer(t *testing.T) {
	tu.SetT(t)

	tm := timer.NewTimer()
	ch := make(chan struct{}, 1)
	tm.Schedule(5*time.Millisecond, func() { ch <- struct{}{} })
	tu.Recv(ch, time.Second)

	cancel := tm.Schedule(time.Hour, func() { ch <- struct{}{} })
	require.NoError(t, cancel())
	require.ErrorIs(t, cancel(), timer.ErrCancelled)
}
