package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// tickEvery runs one sensor tick per distance, advancing the clock by step
// before each one.
func tickEvery(env *testEnv, n int, step time.Duration) []types.SensorReading {
	out := make([]types.SensorReading, 0, n)
	for i := 0; i < n; i++ {
		env.clock.Advance(step)
		out = append(out, env.k.Sensor.Tick(context.Background()))
	}
	return out
}

func TestSensorEngine_DetectsOnceInScenario(t *testing.T) {
	src := &scriptedSource{values: []float64{250, 180, 90, 90}}
	env := newTestEnv(t, src)
	env.k.Sensor.SetThreshold(200)

	readings := tickEvery(env, 4, time.Second)
	env.flush(t)

	require.Len(t, readings, 4)
	for _, r := range readings {
		assert.Equal(t, 200.0, r.Threshold)
	}

	detections := alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected)
	assert.Len(t, detections, 1, "only the third reading should detect")

	entries := env.logs.Entries()
	require.Equal(t, 1, countActions(entries, types.ActionOpened), "door should open exactly once")
	require.NotNil(t, entries[0].SensorDistance)
	assert.Equal(t, 90.0, *entries[0].SensorDistance)
	assert.Equal(t, types.TriggerAutomatic, entries[0].TriggerType)

	assert.Equal(t, 4, env.pub.Count(types.EventSensorDistanceUpdate), "every tick publishes")
}

func TestSensorEngine_CooldownSuppressesRepeats(t *testing.T) {
	src := &scriptedSource{values: []float64{80}}
	env := newTestEnv(t, src)

	env.k.Sensor.Tick(context.Background())
	env.k.Door.Close(types.TriggerManual) // detections must not be masked by "already open"

	// Ticks inside the cooldown window, including exactly at its end.
	for _, step := range []time.Duration{time.Second, 2 * time.Second, 2 * time.Second} {
		env.clock.Advance(step)
		env.k.Sensor.Tick(context.Background())
	}
	env.flush(t)

	assert.Len(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected), 1)
	assert.Equal(t, 1, countActions(env.logs.Entries(), types.ActionOpened))
	assert.Equal(t, types.DoorClosed, env.k.Door.Status().Status)

	// Just past the window the next reading is accepted again.
	env.clock.Advance(time.Millisecond)
	env.k.Sensor.Tick(context.Background())
	env.flush(t)

	assert.Len(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected), 2)
	assert.Equal(t, 2, countActions(env.logs.Entries(), types.ActionOpened))
}

func TestSensorEngine_NearFieldCutoffRequired(t *testing.T) {
	src := &scriptedSource{values: []float64{150, 99.9}}
	env := newTestEnv(t, src)
	env.k.Sensor.SetThreshold(400)

	tickEvery(env, 1, time.Second)
	env.flush(t)
	assert.Empty(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected),
		"below threshold but above the near-field cutoff must not detect")

	tickEvery(env, 1, time.Second)
	env.flush(t)
	assert.Len(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected), 1)
}

func TestSensorEngine_DetectsOnRawDistance(t *testing.T) {
	src := &scriptedSource{values: []float64{99.96}}
	env := newTestEnv(t, src)
	env.k.Sensor.SetThreshold(400)

	r := env.k.Sensor.Tick(context.Background())
	env.flush(t)

	assert.Equal(t, 100.0, r.Distance, "published reading is rounded")
	assert.Len(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected), 1,
		"99.96 is inside the near-field cutoff even though it rounds to 100")
	assert.Equal(t, types.DoorOpen, env.k.Door.Status().Status)
}

func TestSensorEngine_ThresholdBelowCutoffGates(t *testing.T) {
	src := &scriptedSource{values: []float64{70}}
	env := newTestEnv(t, src)
	env.k.Sensor.SetThreshold(60)

	tickEvery(env, 1, time.Second)
	env.flush(t)
	assert.Empty(t, alertsOfType(env.alerts.Alerts(), types.AlertHumanDetected))
}

func TestSensorEngine_ReadingCopiesThreshold(t *testing.T) {
	src := &scriptedSource{values: []float64{300}}
	env := newTestEnv(t, src)

	first := env.k.Sensor.Tick(context.Background())
	env.k.Sensor.SetThreshold(120)
	second := env.k.Sensor.Tick(context.Background())

	assert.Equal(t, 200.0, first.Threshold)
	assert.Equal(t, 120.0, second.Threshold)

	latest, ok := env.k.Sensor.Latest()
	require.True(t, ok)
	assert.Equal(t, second, latest)
}

func TestSensorEngine_DistanceRoundedToTenth(t *testing.T) {
	src := &scriptedSource{values: []float64{123.456}}
	env := newTestEnv(t, src)

	r := env.k.Sensor.Tick(context.Background())
	assert.Equal(t, 123.5, r.Distance)
}

// ── Subscribe ────────────────────────────────────────────────────────────────

func TestSensorEngine_SubscribeDeliversInOrderOnce(t *testing.T) {
	src := &scriptedSource{values: []float64{300, 290, 280, 270, 260}}
	env := newTestEnv(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq := env.k.Sensor.Subscribe(ctx)

	want := tickEvery(env, 5, time.Second)

	var got []types.SensorReading
	for r := range seq {
		got = append(got, r)
		if len(got) == len(want) {
			break
		}
	}
	assert.Equal(t, want, got)

	// A finished sequence cannot be restarted.
	env.k.Sensor.Tick(context.Background())
	restarted := 0
	for range seq {
		restarted++
	}
	assert.Zero(t, restarted)
}

func TestSensorEngine_SubscribeEndsWithContext(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{values: []float64{300}})

	ctx, cancel := context.WithCancel(context.Background())
	seq := env.k.Sensor.Subscribe(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		for range seq {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sequence did not end after cancel")
	}
}

func TestSensorEngine_SlowSubscriberMissesReadings(t *testing.T) {
	env := newTestEnv(t, &scriptedSource{values: []float64{300}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = env.k.Sensor.Subscribe(ctx)

	for i := 0; i < 100; i++ {
		env.k.Sensor.Tick(context.Background())
	}
	assert.Equal(t, int64(100-64), env.k.Sensor.DroppedReadings())
}

// ── Ticker lifecycle ─────────────────────────────────────────────────────────

func TestSensorEngine_IntervalChangeKeepsOneTicker(t *testing.T) {
	src := &scriptedSource{values: []float64{300}}
	env := newTestEnv(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- env.k.Sensor.Serve(ctx) }()

	require.Eventually(t, env.k.Sensor.Running, time.Second, 5*time.Millisecond)
	assert.Equal(t, service.DefaultInterval, env.k.Sensor.Interval())

	_, err := env.k.Settings.Set(context.Background(), types.SettingSensorUpdateInterval, "100")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, env.k.Sensor.Interval())

	// Let the reset land, then count ticks over a fixed window.
	time.Sleep(150 * time.Millisecond)
	before := src.Calls()
	time.Sleep(time.Second)
	ticks := src.Calls() - before

	assert.Equal(t, 1, env.k.Sensor.ActiveTickers())
	// One 100ms ticker gives ~10 ticks; a leftover 500ms ticker would add 2.
	assert.LessOrEqual(t, ticks, 11)
	assert.GreaterOrEqual(t, ticks, 5)

	assert.ErrorIs(t, env.k.Sensor.Serve(ctx), service.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-served)
	assert.Zero(t, env.k.Sensor.ActiveTickers())
	assert.False(t, env.k.Sensor.Running())
}

func TestRandomWalk_StaysInBounds(t *testing.T) {
	w := service.NewRandomWalk(42)
	near := 0
	for i := 0; i < 10000; i++ {
		d := w.Next()
		if d < 20 || d > service.MaxDistance {
			t.Fatalf("reading %d out of bounds: %v", i, d)
		}
		if d < service.MinDistance {
			near++
		}
	}
	assert.Positive(t, near, "expected occasional near-field jumps")
}
