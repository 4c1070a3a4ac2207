package service_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store/memory"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// ── Fake clock ───────────────────────────────────────────────────────────────

// fakeClock only moves when Advance is called. Timers due within the advanced
// window run synchronously on the caller's goroutine, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) service.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Last returns the most recently armed timer.
func (c *fakeClock) Last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// Pending counts timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// FireLate runs the callback even if the timer was stopped, the way a real
// timer that already fired looks to a Close racing with it.
func (t *fakeTimer) FireLate() { t.f() }

// ── Recording publisher ──────────────────────────────────────────────────────

type published struct {
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event: event, payload: payload})
}

func (p *recordingPublisher) Events(event string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (p *recordingPublisher) Count(event string) int { return len(p.Events(event)) }

func (p *recordingPublisher) DoorStates() []types.DoorState {
	var out []types.DoorState
	for _, v := range p.Events(types.EventDoorStatusUpdate) {
		out = append(out, v.(types.DoorState))
	}
	return out
}

func (p *recordingPublisher) Alerts() []types.Alert {
	var out []types.Alert
	for _, v := range p.Events(types.EventAlertNew) {
		out = append(out, v.(types.Alert))
	}
	return out
}

// ── Scripted distance source ─────────────────────────────────────────────────

// scriptedSource replays fixed distances, repeating the last one.
type scriptedSource struct {
	mu     sync.Mutex
	values []float64
	calls  int
}

func (s *scriptedSource) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.calls++
	return s.values[i]
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ── Kernel fixture ───────────────────────────────────────────────────────────

type testEnv struct {
	k        *service.Kernel
	clock    *fakeClock
	pub      *recordingPublisher
	logs     *memory.DoorLogStore
	alerts   *memory.AlertStore
	settings *memory.SettingStore
	audit    *memory.AuditStore
}

func newTestEnv(t *testing.T, src service.DistanceSource) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    newFakeClock(),
		pub:      &recordingPublisher{},
		logs:     memory.NewDoorLogStore(),
		alerts:   memory.NewAlertStore(),
		settings: memory.NewSettingStore(),
		audit:    memory.NewAuditStore(),
	}

	k, err := service.NewKernel(context.Background(), service.Stores{
		DoorLogs: env.logs,
		Alerts:   env.alerts,
		Settings: env.settings,
		Audit:    env.audit,
	}, env.pub, service.KernelConfig{
		Source: src,
		Clock:  env.clock,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	env.k = k

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = k.Shutdown(ctx)
	})
	return env
}

// flush waits for queued door side effects.
func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.k.Door.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func countActions(entries []types.DoorLogEntry, action types.DoorAction) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func alertsOfType(alerts []types.Alert, typ types.AlertType) []types.Alert {
	var out []types.Alert
	for _, a := range alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func assertDeadlineInvariant(t *testing.T, s types.DoorState) {
	t.Helper()
	if (s.AutoCloseDeadline != nil) != (s.Status == types.DoorOpen) {
		t.Fatalf("deadline invariant broken: status=%s deadline=%v", s.Status, s.AutoCloseDeadline)
	}
}
