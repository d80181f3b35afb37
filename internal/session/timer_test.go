package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTimerConfig() TimerConfig {
	return TimerConfig{
		TTL:              250 * time.Millisecond,
		WarningLead:      100 * time.Millisecond,
		ActivityThrottle: 20 * time.Millisecond,
	}
}

func TestTimerConfigValidate(t *testing.T) {
	require.NoError(t, testTimerConfig().Validate())

	bad := []TimerConfig{
		{TTL: time.Hour, WarningLead: time.Minute, ActivityThrottle: 0},
		{TTL: time.Hour, WarningLead: time.Minute, ActivityThrottle: time.Minute},
		{TTL: time.Minute, WarningLead: time.Minute, ActivityThrottle: time.Second},
		{TTL: time.Second, WarningLead: time.Minute, ActivityThrottle: time.Millisecond},
	}
	for _, cfg := range bad {
		require.Error(t, cfg.Validate())
	}
}

func TestTimerWarningThenExpiry(t *testing.T) {
	var warned, expired atomic.Int32
	timer, err := NewTimer(testTimerConfig(),
		func() { warned.Add(1) },
		func() { expired.Add(1) },
	)
	require.NoError(t, err)

	timer.Start()
	require.True(t, timer.Active())
	require.False(t, timer.Warning())

	// Past the warning mark (150ms) but before expiry (250ms).
	time.Sleep(200 * time.Millisecond)
	require.True(t, timer.Warning())
	require.EqualValues(t, 1, warned.Load())
	require.EqualValues(t, 0, expired.Load())

	time.Sleep(150 * time.Millisecond)
	require.False(t, timer.Active())
	require.EqualValues(t, 1, expired.Load())

	// Expired is terminal for this pair: nothing else fires.
	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 1, warned.Load())
	require.EqualValues(t, 1, expired.Load())
}

func TestTimerTouchResetsDeadline(t *testing.T) {
	var expired atomic.Int32
	timer, err := NewTimer(testTimerConfig(), nil, func() { expired.Add(1) })
	require.NoError(t, err)

	timer.Start()
	firstDeadline := timer.ExpiresAt()

	// Stay ahead of expiry by touching past the throttle window.
	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		timer.Touch()
	}
	require.True(t, timer.Active())
	require.True(t, timer.ExpiresAt().After(firstDeadline))
	require.EqualValues(t, 0, expired.Load())

	timer.Stop()
}

func TestTimerTouchThrottled(t *testing.T) {
	timer, err := NewTimer(testTimerConfig(), nil, nil)
	require.NoError(t, err)

	timer.Start()
	deadline := timer.ExpiresAt()

	// Rapid-fire signals inside the throttle window must not reschedule.
	timer.Touch()
	timer.Touch()
	timer.Touch()
	require.Equal(t, deadline, timer.ExpiresAt())

	timer.Stop()
}

func TestTimerTouchClearsWarning(t *testing.T) {
	// Spec scenario shape, scaled: T=900ms, W=150ms. Warning at 750ms,
	// activity at ~800ms; at the original expiry mark the session is
	// still alive.
	cfg := TimerConfig{
		TTL:              900 * time.Millisecond,
		WarningLead:      150 * time.Millisecond,
		ActivityThrottle: 20 * time.Millisecond,
	}
	var expired atomic.Int32
	timer, err := NewTimer(cfg, nil, func() { expired.Add(1) })
	require.NoError(t, err)

	timer.Start()
	time.Sleep(800 * time.Millisecond)
	require.True(t, timer.Warning())

	timer.Touch()
	require.False(t, timer.Warning())
	require.True(t, timer.Active())

	// 200ms past the original 900ms mark: no expiry happened.
	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 0, expired.Load())
	require.True(t, timer.Active())

	timer.Stop()
}

func TestTimerExtendFromWarning(t *testing.T) {
	timer, err := NewTimer(testTimerConfig(), nil, nil)
	require.NoError(t, err)

	timer.Start()
	time.Sleep(200 * time.Millisecond)
	require.True(t, timer.Warning())

	before := time.Now()
	timer.Extend()
	require.False(t, timer.Warning())
	require.True(t, timer.Active())

	// Both deadlines pushed forward by the full TTL from now.
	got := timer.ExpiresAt()
	require.WithinDuration(t, before.Add(testTimerConfig().TTL), got, 50*time.Millisecond)

	timer.Stop()
}

func TestTimerIdleOperationsNoOp(t *testing.T) {
	timer, err := NewTimer(testTimerConfig(), nil, nil)
	require.NoError(t, err)

	timer.Touch()
	timer.Extend()
	timer.Stop()
	require.False(t, timer.Active())
	require.True(t, timer.ExpiresAt().IsZero())
}

func TestTimerStopCancelsPair(t *testing.T) {
	var fired atomic.Int32
	timer, err := NewTimer(testTimerConfig(),
		func() { fired.Add(1) },
		func() { fired.Add(1) },
	)
	require.NoError(t, err)

	timer.Start()
	timer.Stop()

	time.Sleep(400 * time.Millisecond)
	require.EqualValues(t, 0, fired.Load())
}

func TestTimerRestartAfterExpiry(t *testing.T) {
	var expired atomic.Int32
	timer, err := NewTimer(testTimerConfig(), nil, func() { expired.Add(1) })
	require.NoError(t, err)

	timer.Start()
	time.Sleep(350 * time.Millisecond)
	require.EqualValues(t, 1, expired.Load())

	// A fresh login re-enters Active.
	timer.Start()
	require.True(t, timer.Active())
	timer.Stop()
}
