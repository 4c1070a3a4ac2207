package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// DefaultAutoClose matches the seeded auto_close_timer setting.
const DefaultAutoClose = 30 * time.Second

type DoorDeps struct {
	Logs      store.DoorLogStore
	Alerts    AlertRecorder
	Publisher Publisher
	Outbox    *Outbox
	Guard     *WriteGuard
	Clock     Clock
	Logger    zerolog.Logger
}

// DoorController is the only code path that changes door state. One mutex
// serializes manual requests, sensor detections and auto-close timer fires.
//
// Side effects of a transition (log entry, alert, status broadcast) are
// queued on the outbox while the lock is held, so they run in transition
// order, and executed after it is released.
type DoorController struct {
	logs   store.DoorLogStore
	alerts AlertRecorder
	pub    Publisher
	outbox *Outbox
	guard  *WriteGuard
	clock  Clock
	log    zerolog.Logger

	mu        sync.Mutex
	state     types.DoorState
	timer     Timer
	gen       uint64
	autoClose time.Duration
	stopped   bool
}

func NewDoorController(deps DoorDeps, autoClose time.Duration) *DoorController {
	if autoClose <= 0 {
		autoClose = DefaultAutoClose
	}
	c := &DoorController{
		logs:      deps.Logs,
		alerts:    deps.Alerts,
		pub:       deps.Publisher,
		outbox:    deps.Outbox,
		guard:     deps.Guard,
		clock:     deps.Clock,
		log:       deps.Logger.With().Str("component", "door_controller").Logger(),
		autoClose: autoClose,
	}
	if c.pub == nil {
		c.pub = NopPublisher
	}
	if c.clock == nil {
		c.clock = SystemClock()
	}
	c.state = types.DoorState{
		Status:           types.DoorClosed,
		LastUpdated:      c.clock.Now().UTC(),
		Trigger:          types.TriggerNone,
		AutoCloseSeconds: int(autoClose / time.Second),
	}
	return c
}

// Open opens a closed door. Opening an open door returns the current state
// and has no side effects.
func (c *DoorController) Open(trigger types.Trigger) types.DoorState {
	return c.open(trigger, nil)
}

// OpenForDetection is the sensor path: an automatic open that records the
// triggering distance in the door log.
func (c *DoorController) OpenForDetection(distance float64) types.DoorState {
	return c.open(types.TriggerAutomatic, &distance)
}

// Close closes an open door and cancels its auto-close timer. Closing a
// closed door returns the current state and has no side effects.
func (c *DoorController) Close(trigger types.Trigger) types.DoorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.state.Status == types.DoorClosed {
		return c.snapshotLocked()
	}
	return c.closeLocked(trigger)
}

// Stop cancels a pending auto-close timer and makes every later transition
// a no-op. The kernel calls it before draining the outbox on shutdown.
func (c *DoorController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *DoorController) Status() types.DoorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ReconfigureAutoCloseDuration changes the duration used by timers armed
// from now on. A pending timer keeps its deadline.
func (c *DoorController) ReconfigureAutoCloseDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoClose = d
	c.state.AutoCloseSeconds = int(d / time.Second)
}

func (c *DoorController) AutoCloseDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoClose
}

// Flush waits until every side effect queued so far has run.
func (c *DoorController) Flush(ctx context.Context) error {
	return c.outbox.Flush(ctx)
}

func (c *DoorController) open(trigger types.Trigger, distance *float64) types.DoorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.state.Status == types.DoorOpen {
		return c.snapshotLocked()
	}

	now := c.clock.Now().UTC()
	deadline := now.Add(c.autoClose)

	c.gen++
	gen := c.gen
	c.state.Status = types.DoorOpen
	c.state.LastUpdated = now
	c.state.Trigger = trigger
	c.state.AutoCloseDeadline = &deadline
	c.timer = c.clock.AfterFunc(c.autoClose, func() { c.fire(gen) })

	msg := "Door opened manually"
	if trigger == types.TriggerAutomatic {
		msg = "Door opened automatically"
	}

	snap := c.snapshotLocked()
	c.enqueueTransition(snap, types.ActionOpened, distance, msg, types.PriorityMedium)
	return snap
}

// closeLocked performs the Open -> Closed transition. Bumping the generation
// makes any timer callback already waiting on the lock a no-op.
func (c *DoorController) closeLocked(trigger types.Trigger) types.DoorState {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++

	c.state.Status = types.DoorClosed
	c.state.LastUpdated = c.clock.Now().UTC()
	c.state.Trigger = trigger
	c.state.AutoCloseDeadline = nil

	msg, prio := "Door closed manually", types.PriorityMedium
	if trigger == types.TriggerTimeout {
		msg, prio = "Door closed automatically", types.PriorityLow
	}

	snap := c.snapshotLocked()
	c.enqueueTransition(snap, types.ActionClosed, nil, msg, prio)
	return snap
}

// fire is the auto-close timer callback. It acts only if the timer that was
// armed for this open interval is still the current one.
func (c *DoorController) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.timer = nil

	if c.state.Status != types.DoorOpen || c.state.AutoCloseDeadline == nil {
		c.forceCloseLocked()
		return
	}
	c.closeLocked(types.TriggerTimeout)
}

// forceCloseLocked handles a current-generation timer firing with no open
// record behind it. The door is put in the safe state and a system alert is
// raised.
func (c *DoorController) forceCloseLocked() {
	c.log.Error().
		Err(ErrInvariantViolation).
		Str("status", string(c.state.Status)).
		Bool("has_deadline", c.state.AutoCloseDeadline != nil).
		Msg("auto-close timer fired without an open door; forcing closed")

	wasOpen := c.state.Status == types.DoorOpen
	c.gen++
	c.state.Status = types.DoorClosed
	c.state.LastUpdated = c.clock.Now().UTC()
	c.state.Trigger = types.TriggerTimeout
	c.state.AutoCloseDeadline = nil
	snap := c.snapshotLocked()

	c.outbox.Enqueue("door_invariant", func(ctx context.Context) {
		c.pub.Publish(types.EventDoorStatusUpdate, snap)
		if wasOpen {
			c.appendLog(ctx, types.DoorLogEntry{
				Action:      types.ActionClosed,
				TriggerType: types.TriggerTimeout,
				Timestamp:   snap.LastUpdated,
			})
		}
		c.recordAlert(ctx, types.AlertSystemError,
			"Auto-close timer fired without an open door; door forced closed", types.PriorityHigh)
	})
}

func (c *DoorController) enqueueTransition(snap types.DoorState, action types.DoorAction, distance *float64, msg string, prio types.Priority) {
	entry := types.DoorLogEntry{
		Action:         action,
		SensorDistance: distance,
		TriggerType:    snap.Trigger,
		Timestamp:      snap.LastUpdated,
	}
	c.outbox.Enqueue("door_transition", func(ctx context.Context) {
		c.pub.Publish(types.EventDoorStatusUpdate, snap)
		c.appendLog(ctx, entry)
		c.recordAlert(ctx, types.AlertDoorOperation, msg, prio)
	})
}

func (c *DoorController) appendLog(ctx context.Context, entry types.DoorLogEntry) {
	err := c.guard.Do(ctx, "AppendDoorLog", func(ctx context.Context) error {
		_, err := c.logs.AppendDoorLog(ctx, entry)
		return err
	})
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("action", string(entry.Action)).
			Str("trigger", string(entry.TriggerType)).
			Msg("door log entry not persisted")
	}
}

func (c *DoorController) recordAlert(ctx context.Context, typ types.AlertType, msg string, prio types.Priority) {
	// The alert engine logs its own persistence failures.
	if _, err := c.alerts.Record(ctx, typ, msg, prio); err != nil && !errors.Is(err, ErrStoreUnavailable) {
		c.log.Warn().Err(err).Str("type", string(typ)).Msg("alert record failed")
	}
}

func (c *DoorController) snapshotLocked() types.DoorState {
	s := c.state
	if c.state.AutoCloseDeadline != nil {
		d := *c.state.AutoCloseDeadline
		s.AutoCloseDeadline = &d
	}
	return s
}
