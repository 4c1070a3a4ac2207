package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store/memory"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

func TestSettingsService_SetAppliesLiveEffects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	row, err := env.k.Settings.Set(ctx, types.SettingDetectionThreshold, "150")
	require.NoError(t, err)
	assert.Equal(t, "150", row.Value)
	assert.Equal(t, 150.0, env.k.Sensor.Threshold())

	_, err = env.k.Settings.Set(ctx, types.SettingSensorUpdateInterval, "250")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, env.k.Sensor.Interval())

	_, err = env.k.Settings.Set(ctx, types.SettingAutoCloseTimer, "45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, env.k.Door.AutoCloseDuration())

	stored, err := env.settings.GetSetting(ctx, types.SettingAutoCloseTimer)
	require.NoError(t, err)
	assert.Equal(t, "45", stored.Value)
	assert.Equal(t, env.clock.Now(), stored.UpdatedAt)
}

func TestSettingsService_SetNormalisesValues(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	row, err := env.k.Settings.Set(ctx, types.SettingAlertSoundEnabled, " FALSE ")
	require.NoError(t, err)
	assert.Equal(t, "false", row.Value)

	row, err = env.k.Settings.Set(ctx, types.SettingDetectionThreshold, "75.50")
	require.NoError(t, err)
	assert.Equal(t, "75.5", row.Value)
}

func TestSettingsService_SetRecordsMaintenanceAlert(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.k.Settings.Set(context.Background(), types.SettingNotificationsEnabled, "false")
	require.NoError(t, err)

	got := alertsOfType(env.alerts.Alerts(), types.AlertMaintenance)
	require.Len(t, got, 1)
	assert.Equal(t, "Setting notifications_enabled updated to false", got[0].Message)
	assert.Equal(t, types.PriorityLow, got[0].Priority)
}

func TestSettingsService_RejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.k.Settings.Set(context.Background(), "door_color", "red")
	assert.ErrorIs(t, err, service.ErrUnknownSetting)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = env.k.Settings.Get(context.Background(), "door_color")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, service.ErrValidation)

	assert.Empty(t, env.alerts.Alerts(), "rejected updates record nothing")
}

func TestSettingsService_RejectsBadValues(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		key, value string
	}{
		{types.SettingDetectionThreshold, "49.9"},
		{types.SettingDetectionThreshold, "400.1"},
		{types.SettingDetectionThreshold, "near"},
		{types.SettingDetectionThreshold, "NaN"},
		{types.SettingAutoCloseTimer, "9"},
		{types.SettingAutoCloseTimer, "121"},
		{types.SettingAutoCloseTimer, "30.5"},
		{types.SettingSensorUpdateInterval, "99"},
		{types.SettingSensorUpdateInterval, "5001"},
		{types.SettingAlertSoundEnabled, "sometimes"},
		{types.SettingNotificationsEnabled, ""},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			_, err := env.k.Settings.Set(context.Background(), tc.key, tc.value)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}

	assert.Equal(t, service.DefaultThreshold, env.k.Sensor.Threshold())
	assert.Equal(t, service.DefaultAutoClose, env.k.Door.AutoCloseDuration())
}

func TestSettingsService_BoundaryValuesAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for key, value := range map[string]string{
		types.SettingDetectionThreshold:   "50",
		types.SettingAutoCloseTimer:       "120",
		types.SettingSensorUpdateInterval: "100",
	} {
		_, err := env.k.Settings.Set(ctx, key, value)
		assert.NoError(t, err, "%s=%s", key, value)
	}
}

func TestSettingsService_StoreFailureAppliesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.settings.SetUnavailable(true)

	_, err := env.k.Settings.Set(context.Background(), types.SettingDetectionThreshold, "120")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrTransient))
	assert.Equal(t, service.DefaultThreshold, env.k.Sensor.Threshold())
}

func TestSettingsService_ApplyLoadsPersistedValues(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.settings.PutSetting(ctx, types.Setting{Key: types.SettingDetectionThreshold, Value: "90"}))
	require.NoError(t, env.settings.PutSetting(ctx, types.Setting{Key: types.SettingAutoCloseTimer, Value: "15"}))
	require.NoError(t, env.settings.PutSetting(ctx, types.Setting{Key: types.SettingSensorUpdateInterval, Value: "garbage"}))

	require.NoError(t, env.k.Settings.Apply(ctx))

	assert.Equal(t, 90.0, env.k.Sensor.Threshold())
	assert.Equal(t, 15*time.Second, env.k.Door.AutoCloseDuration())
	assert.Equal(t, service.DefaultInterval, env.k.Sensor.Interval(), "invalid stored value is skipped")
}

func TestSettingsService_GetAllReturnsFixedKeys(t *testing.T) {
	env := newTestEnv(t, nil)

	rows, err := env.k.Settings.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.True(t, service.KnownSetting(r.Key), r.Key)
	}
}

// stallingStore holds back the acknowledgement of one value until release
// is closed; the row itself is written immediately.
type stallingStore struct {
	*memory.SettingStore
	stallOn string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) PutSetting(ctx context.Context, row types.Setting) error {
	if err := s.SettingStore.PutSetting(ctx, row); err != nil {
		return err
	}
	if row.Value == s.stallOn {
		close(s.entered)
		<-s.release
	}
	return nil
}

type intervalTuner struct {
	mu       sync.Mutex
	interval time.Duration
}

func (t *intervalTuner) SetThreshold(float64) {}

func (t *intervalTuner) SetInterval(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	return nil
}

func (t *intervalTuner) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func TestSettingsService_ConcurrentSetsDoNotDrift(t *testing.T) {
	backing := &stallingStore{
		SettingStore: memory.NewSettingStore(),
		stallOn:      "100",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	tuner := &intervalTuner{}
	svc := service.NewSettingsService(service.SettingsDeps{
		Store:  backing,
		Sensor: tuner,
		Guard:  service.NewWriteGuard(service.GuardConfig{}, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.Set(ctx, types.SettingSensorUpdateInterval, "100")
	}()
	<-backing.entered
	go func() {
		defer wg.Done()
		_, _ = svc.Set(ctx, types.SettingSensorUpdateInterval, "200")
	}()
	time.Sleep(50 * time.Millisecond)
	close(backing.release)
	wg.Wait()

	stored, err := backing.GetSetting(ctx, types.SettingSensorUpdateInterval)
	require.NoError(t, err)
	assert.Equal(t, "200", stored.Value)
	assert.Equal(t, 200*time.Millisecond, tuner.Interval(), "runtime must match the stored value")
}
