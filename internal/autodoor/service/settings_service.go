package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// SensorTuner receives live sensor settings.
type SensorTuner interface {
	SetThreshold(v float64)
	SetInterval(d time.Duration) error
}

// AutoCloseTuner receives the live auto-close duration.
type AutoCloseTuner interface {
	ReconfigureAutoCloseDuration(d time.Duration)
}

type SettingsDeps struct {
	Store  store.SettingStore
	Sensor SensorTuner
	Door   AutoCloseTuner
	Alerts AlertRecorder
	Guard  *WriteGuard
	Clock  Clock
	Logger zerolog.Logger
}

// settingRule normalises a raw value and applies it to the running kernel.
type settingRule struct {
	parse func(raw string) (string, error)
	apply func(s *SettingsService, value string)
}

var settingRules = map[string]settingRule{
	types.SettingDetectionThreshold: {
		parse: numberIn("gte=50,lte=400"),
		apply: func(s *SettingsService, v string) {
			f, _ := strconv.ParseFloat(v, 64)
			s.sensor.SetThreshold(f)
		},
	},
	types.SettingAutoCloseTimer: {
		parse: integerIn("gte=10,lte=120"),
		apply: func(s *SettingsService, v string) {
			n, _ := strconv.Atoi(v)
			s.door.ReconfigureAutoCloseDuration(time.Duration(n) * time.Second)
		},
	},
	types.SettingSensorUpdateInterval: {
		parse: integerIn("gte=100,lte=5000"),
		apply: func(s *SettingsService, v string) {
			n, _ := strconv.Atoi(v)
			if err := s.sensor.SetInterval(time.Duration(n) * time.Millisecond); err != nil {
				s.log.Warn().Err(err).Msg("sensor interval not applied")
			}
		},
	},
	types.SettingAlertSoundEnabled:    {parse: boolean},
	types.SettingNotificationsEnabled: {parse: boolean},
}

// KnownSetting reports whether key is one of the fixed setting keys.
func KnownSetting(key string) bool {
	_, ok := settingRules[key]
	return ok
}

// SettingsService validates, persists and applies settings. Updates are
// serialised so the running kernel always reflects the last stored write.
type SettingsService struct {
	mu sync.Mutex

	store  store.SettingStore
	sensor SensorTuner
	door   AutoCloseTuner
	alerts AlertRecorder
	guard  *WriteGuard
	clock  Clock
	log    zerolog.Logger
}

func NewSettingsService(deps SettingsDeps) *SettingsService {
	s := &SettingsService{
		store:  deps.Store,
		sensor: deps.Sensor,
		door:   deps.Door,
		alerts: deps.Alerts,
		guard:  deps.Guard,
		clock:  deps.Clock,
		log:    deps.Logger.With().Str("component", "settings").Logger(),
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	return s
}

// Get returns one setting. Unknown keys wrap store.ErrNotFound.
func (s *SettingsService) Get(ctx context.Context, key string) (types.Setting, error) {
	key = strings.TrimSpace(key)
	if !KnownSetting(key) {
		return types.Setting{}, fmt.Errorf("setting %q: %w", key, store.ErrNotFound)
	}
	return s.store.GetSetting(ctx, key)
}

func (s *SettingsService) GetAll(ctx context.Context) ([]types.Setting, error) {
	return s.store.ListSettings(ctx)
}

// Set validates value for key, persists it and then applies it to the
// running kernel. Nothing is applied when the write fails.
func (s *SettingsService) Set(ctx context.Context, key, value string) (types.Setting, error) {
	key = strings.TrimSpace(key)
	rule, ok := settingRules[key]
	if !ok {
		return types.Setting{}, fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	normalized, err := rule.parse(strings.TrimSpace(value))
	if err != nil {
		return types.Setting{}, fmt.Errorf("%s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := types.Setting{Key: key, Value: normalized, UpdatedAt: s.clock.Now().UTC()}
	if err := s.guard.Do(ctx, "PutSetting", func(ctx context.Context) error {
		return s.store.PutSetting(ctx, row)
	}); err != nil {
		return types.Setting{}, err
	}

	if rule.apply != nil {
		rule.apply(s, normalized)
	}
	s.log.Info().Str("key", key).Str("value", normalized).Msg("setting updated")

	if s.alerts != nil {
		msg := fmt.Sprintf("Setting %s updated to %s", key, normalized)
		if _, err := s.alerts.Record(ctx, types.AlertMaintenance, msg, types.PriorityLow); err != nil && !errors.Is(err, ErrStoreUnavailable) {
			s.log.Warn().Err(err).Str("key", key).Msg("settings alert failed")
		}
	}

	stored, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return row, nil
	}
	return stored, nil
}

// Apply pushes every persisted setting into the running kernel. Invalid
// stored values are logged and skipped so the defaults stay in effect.
func (s *SettingsService) Apply(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.store.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	for _, row := range rows {
		rule, ok := settingRules[row.Key]
		if !ok {
			s.log.Warn().Str("key", row.Key).Msg("ignoring unknown stored setting")
			continue
		}
		v, err := rule.parse(row.Value)
		if err != nil {
			s.log.Warn().Err(err).Str("key", row.Key).Str("value", row.Value).Msg("ignoring invalid stored setting")
			continue
		}
		if rule.apply != nil {
			rule.apply(s, v)
		}
	}
	return nil
}

func numberIn(tag string) func(string) (string, error) {
	return func(raw string) (string, error) {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", validationError("%q is not a number", raw)
		}
		if err := validate.Var(f, tag); err != nil {
			return "", validationError("%v out of range (%s)", f, tag)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
}

func integerIn(tag string) func(string) (string, error) {
	return func(raw string) (string, error) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", validationError("%q is not an integer", raw)
		}
		if err := validate.Var(n, tag); err != nil {
			return "", validationError("%d out of range (%s)", n, tag)
		}
		return strconv.Itoa(n), nil
	}
}

func boolean(raw string) (string, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return "", validationError("%q is not a boolean", raw)
	}
	return strconv.FormatBool(b), nil
}
