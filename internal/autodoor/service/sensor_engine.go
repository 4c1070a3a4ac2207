package service

import (
	"context"
	"errors"
	"iter"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const (
	// NearFieldCutoff is the fixed distance a reading must also be under for
	// a detection, whatever the configured threshold.
	NearFieldCutoff = 100.0

	DetectionCooldown = 5 * time.Second

	DefaultThreshold = 200.0
	DefaultInterval  = 500 * time.Millisecond

	MinDistance = 50.0
	MaxDistance = 400.0

	subscriberBuffer = 64
)

var ErrAlreadyRunning = errors.New("sensor engine already running")

// DistanceSource yields one raw distance per tick.
type DistanceSource interface {
	Next() float64
}

// RandomWalk stands in for the physical sensor: a bounded random walk with an
// occasional jump into the near field.
type RandomWalk struct {
	mu  sync.Mutex
	rng *rand.Rand
	cur float64
}

func NewRandomWalk(seed uint64) *RandomWalk {
	return &RandomWalk{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		cur: 300,
	}
}

func (w *RandomWalk) Next() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rng.Float64() < 0.1 {
		w.cur = 20 + w.rng.Float64()*100
	} else {
		w.cur = min(MaxDistance, max(MinDistance, w.cur+(w.rng.Float64()-0.5)*20))
	}
	return w.cur
}

// DoorOpener is the door controller entry point used on detection.
type DoorOpener interface {
	OpenForDetection(distance float64) types.DoorState
}

type SensorDeps struct {
	Source    DistanceSource
	Door      DoorOpener
	Alerts    AlertRecorder
	Publisher Publisher
	Clock     Clock
	Logger    zerolog.Logger
}

type subscriber struct {
	ch chan types.SensorReading
}

// SensorEngine generates readings on a ticker and applies the detection
// policy. Serve owns the only ticker; SetInterval resets it in place.
type SensorEngine struct {
	src    DistanceSource
	door   DoorOpener
	alerts AlertRecorder
	pub    Publisher
	clock  Clock
	log    zerolog.Logger

	mu            sync.Mutex
	threshold     float64
	lastDetection time.Time
	detected      bool
	latest        types.SensorReading
	hasLatest     bool
	subs          map[*subscriber]struct{}

	intervalMu sync.Mutex
	interval   time.Duration
	intervalCh chan time.Duration

	running atomic.Bool
	tickers atomic.Int32
	dropped atomic.Int64
}

func NewSensorEngine(deps SensorDeps) *SensorEngine {
	e := &SensorEngine{
		src:        deps.Source,
		door:       deps.Door,
		alerts:     deps.Alerts,
		pub:        deps.Publisher,
		clock:      deps.Clock,
		log:        deps.Logger.With().Str("component", "sensor_engine").Logger(),
		threshold:  DefaultThreshold,
		subs:       make(map[*subscriber]struct{}),
		interval:   DefaultInterval,
		intervalCh: make(chan time.Duration, 1),
	}
	if e.src == nil {
		e.src = NewRandomWalk(uint64(time.Now().UnixNano()))
	}
	if e.pub == nil {
		e.pub = NopPublisher
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	return e
}

// Serve runs the tick loop until ctx is cancelled. Only one Serve may run at
// a time.
func (e *SensorEngine) Serve(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	interval := e.Interval()
	ticker := time.NewTicker(interval)
	e.tickers.Add(1)
	defer func() {
		ticker.Stop()
		e.tickers.Add(-1)
	}()

	e.log.Info().Dur("interval", interval).Msg("sensor engine started")

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("sensor engine stopped")
			return nil
		case d := <-e.intervalCh:
			ticker.Reset(d)
			e.log.Info().Dur("interval", d).Msg("sensor ticker restarted")
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick produces one reading, evaluates detection and publishes the reading.
// Detection uses the raw distance; only the published reading is rounded.
func (e *SensorEngine) Tick(ctx context.Context) types.SensorReading {
	raw := e.src.Next()
	distance := math.Round(raw*10) / 10
	now := e.clock.Now().UTC()

	e.mu.Lock()
	r := types.SensorReading{Distance: distance, Threshold: e.threshold, Timestamp: now}
	e.latest = r
	e.hasLatest = true

	detect := raw < e.threshold && raw < NearFieldCutoff
	if detect && e.detected && now.Sub(e.lastDetection) <= DetectionCooldown {
		detect = false
	}
	if detect {
		e.detected = true
		e.lastDetection = now
	}

	for sub := range e.subs {
		select {
		case sub.ch <- r:
		default:
			e.dropped.Add(1)
		}
	}
	e.mu.Unlock()

	e.pub.Publish(types.EventSensorDistanceUpdate, r)

	if detect {
		e.log.Debug().Float64("distance", distance).Float64("threshold", r.Threshold).Msg("human detected")
		e.door.OpenForDetection(distance)
		if _, err := e.alerts.Record(ctx, types.AlertHumanDetected, "Human detected within range", types.PriorityMedium); err != nil && !errors.Is(err, ErrStoreUnavailable) {
			e.log.Warn().Err(err).Msg("human detection alert failed")
		}
	}
	return r
}

// Subscribe returns the readings produced after the call, in generation
// order. The sequence ends when ctx is done or the consumer stops; it can be
// ranged over only once. A consumer that falls behind misses readings.
func (e *SensorEngine) Subscribe(ctx context.Context) iter.Seq[types.SensorReading] {
	sub := &subscriber{ch: make(chan types.SensorReading, subscriberBuffer)}

	e.mu.Lock()
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { e.unsubscribe(sub) })

	var used atomic.Bool
	return func(yield func(types.SensorReading) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}
		defer func() {
			stop()
			e.unsubscribe(sub)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case r := <-sub.ch:
				if !yield(r) {
					return
				}
			}
		}
	}
}

func (e *SensorEngine) unsubscribe(sub *subscriber) {
	e.mu.Lock()
	delete(e.subs, sub)
	e.mu.Unlock()
}

// SetInterval changes the tick cadence. A running loop resets its ticker;
// otherwise the value is used on the next Serve.
func (e *SensorEngine) SetInterval(d time.Duration) error {
	if d <= 0 {
		return validationError("sensor interval must be positive, got %s", d)
	}

	e.intervalMu.Lock()
	defer e.intervalMu.Unlock()

	e.interval = d
	// Keep only the newest pending value.
	select {
	case <-e.intervalCh:
	default:
	}
	e.intervalCh <- d
	return nil
}

func (e *SensorEngine) Interval() time.Duration {
	e.intervalMu.Lock()
	defer e.intervalMu.Unlock()
	return e.interval
}

func (e *SensorEngine) SetThreshold(v float64) {
	e.mu.Lock()
	e.threshold = v
	e.mu.Unlock()
}

func (e *SensorEngine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// Latest returns the most recent reading, if any tick has run.
func (e *SensorEngine) Latest() (types.SensorReading, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.hasLatest
}

func (e *SensorEngine) Running() bool { return e.running.Load() }

// ActiveTickers is the number of live tick sources (0 or 1).
func (e *SensorEngine) ActiveTickers() int { return int(e.tickers.Load()) }

// DroppedReadings counts readings not delivered to slow subscribers.
func (e *SensorEngine) DroppedReadings() int64 { return e.dropped.Load() }
