package discovery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/invoker/invokertest"
)

func newDiscovery(lib *invokertest.Library, pwm []uint8, mode discovery.PWMMode) *discovery.Discovery {
	inv, _ := invokertest.New(lib)
	return discovery.New(inv, pwm, mode, invokertest.Logger())
}

func TestFanValidity(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.FanStatus[5], lib.FanSpeed[5], lib.PWM[5] = 0, 4000, 128
	lib.FanStatus[7], lib.FanSpeed[7], lib.PWM[7] = 0, 65535, 128
	lib.FanStatus[10], lib.FanSpeed[10], lib.PWM[10] = 1, 4000, 128
	lib.FanStatus[11], lib.FanSpeed[11], lib.PWM[11] = 0, 4000, 300
	lib.FanStatus[25] = 0

	d := newDiscovery(lib, nil, discovery.Differential)
	ctx := context.Background()

	tests := []struct {
		id    uint8
		valid bool
	}{
		{5, true},
		{7, false},
		{10, false},
		{11, false},
		{25, false},
		{99, false},
	}
	for _, tt := range tests {
		valid, err := d.Valid(ctx, discovery.Fan, tt.id)
		require.NoError(t, err)
		require.Equal(t, tt.valid, valid, "fan %d", tt.id)
	}
}

func TestFanProbesShortCircuit(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.FanStatus[7] = 3

	d := newDiscovery(lib, nil, discovery.Differential)
	valid, err := d.Valid(context.Background(), discovery.Fan, 7)
	require.NoError(t, err)
	require.False(t, valid)
	require.Equal(t, []string{"ec_sys_get_fan_status(7)"}, lib.Calls())
}

func TestMemoization(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.FanStatus[5], lib.FanSpeed[5], lib.PWM[5] = 0, 4000, 128
	lib.Temperature[1] = 30
	lib.Temperature[2] = -5

	d := newDiscovery(lib, []uint8{5}, discovery.Differential)
	ctx := context.Background()

	queries := []struct {
		cat discovery.Category
		id  uint8
	}{
		{discovery.Fan, 5},
		{discovery.Fan, 6},
		{discovery.PWM, 5},
		{discovery.Temperature, 1},
		{discovery.Temperature, 2},
	}

	first := make([]bool, len(queries))
	for i, q := range queries {
		valid, err := d.Valid(ctx, q.cat, q.id)
		require.NoError(t, err)
		first[i] = valid
	}
	calls := len(lib.Calls())

	for i, q := range queries {
		valid, err := d.Valid(ctx, q.cat, q.id)
		require.NoError(t, err)
		require.Equal(t, first[i], valid)

		cached, probed := d.Cache().Lookup(q.cat, q.id)
		require.True(t, probed)
		require.Equal(t, first[i], cached)
	}
	require.Len(t, lib.Calls(), calls)
}

func TestPWMAliasGroup(t *testing.T) {
	const a, b, c = 5, 7, 25

	lib := invokertest.NewLibrary()
	lib.PWM[a], lib.PWM[b], lib.PWM[c] = 120, 120, 120
	lib.FanSpeed[a], lib.FanSpeed[b], lib.FanSpeed[c] = 1500, 1500, 900
	lib.Aliases[a] = []uint8{b}
	lib.Aliases[b] = []uint8{a}

	d := newDiscovery(lib, []uint8{a, b, c}, discovery.Differential)
	ctx := context.Background()

	validA, err := d.Valid(ctx, discovery.PWM, a)
	require.NoError(t, err)
	validB, err := d.Valid(ctx, discovery.PWM, b)
	require.NoError(t, err)
	require.True(t, validA != validB, "exactly one of the aliased channels is valid")

	// c did not follow a and is left for its own probe
	_, probed := d.Cache().Lookup(discovery.PWM, c)
	require.False(t, probed)

	validC, err := d.Valid(ctx, discovery.PWM, c)
	require.NoError(t, err)
	require.True(t, validC)

	for _, ch := range []uint8{a, b, c} {
		require.Equal(t, uint32(120), lib.GetPWM(ch), "pwm %d restored", ch)
	}
}

func TestPWMAliasElectionSkipsAbsentFan(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.PWM[5], lib.PWM[7] = 250, 250
	lib.FanSpeed[5], lib.FanSpeed[7] = 65535, 800
	lib.Aliases[5] = []uint8{7}

	d := newDiscovery(lib, []uint8{5, 7}, discovery.Differential)
	ctx := context.Background()

	valid, err := d.Valid(ctx, discovery.PWM, 5)
	require.NoError(t, err)
	require.False(t, valid)

	valid, err = d.Valid(ctx, discovery.PWM, 7)
	require.NoError(t, err)
	require.True(t, valid)

	require.Contains(t, lib.Calls(), "ec_sys_set_fan_speed(5)")
	require.Equal(t, uint32(250), lib.GetPWM(5))
}

func TestPWMPerturbationNearUpperBound(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.PWM[35] = 255
	lib.FanSpeed[35] = 2000
	lib.Aliases[35] = []uint8{36}
	lib.PWM[36] = 255

	d := newDiscovery(lib, []uint8{35, 36}, discovery.Differential)

	valid, err := d.Valid(context.Background(), discovery.PWM, 36)
	require.NoError(t, err)
	require.False(t, valid, "no fan behind 36")

	valid, err = d.Valid(context.Background(), discovery.PWM, 35)
	require.NoError(t, err)
	require.True(t, valid)
	require.Equal(t, uint32(255), lib.GetPWM(35))
}

func TestPWMFrozenChannel(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.PWM[5] = 100
	lib.FanSpeed[5] = 1000
	lib.Frozen[5] = true

	d := newDiscovery(lib, []uint8{5}, discovery.Differential)
	valid, err := d.Valid(context.Background(), discovery.PWM, 5)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestPWMUnreadableChannel(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.PWM[5] = 100
	lib.FanSpeed[5] = 1000

	d := newDiscovery(lib, []uint8{5, 7}, discovery.Differential)

	valid, err := d.Valid(context.Background(), discovery.PWM, 5)
	require.NoError(t, err)
	require.True(t, valid)

	// 7 failed its initial read while 5 was probed
	valid, probed := d.Cache().Lookup(discovery.PWM, 7)
	require.True(t, probed)
	require.False(t, valid)
}

func TestPWMFanMode(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.FanStatus[7], lib.FanSpeed[7], lib.PWM[7] = 0, 4000, 128

	d := newDiscovery(lib, []uint8{7}, discovery.FanMode)
	valid, err := d.Valid(context.Background(), discovery.PWM, 7)
	require.NoError(t, err)
	require.True(t, valid)
	require.NotContains(t, lib.Calls(), "ec_sys_set_fan_speed(7)")

	_, probed := d.Cache().Lookup(discovery.Fan, 7)
	require.False(t, probed)
}

func TestTemperatureValidity(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.Temperature[1] = 38.5
	lib.Temperature[7] = 0
	lib.Temperature[10] = -0.5
	lib.Temperature[12] = -0.0004

	d := newDiscovery(lib, nil, discovery.Differential)
	ctx := context.Background()

	for id, want := range map[uint8]bool{1: true, 7: true, 10: false, 11: false, 12: false} {
		valid, err := d.Valid(ctx, discovery.Temperature, id)
		require.NoError(t, err)
		require.Equal(t, want, valid, "temp %d", id)
	}
}

func TestHelperNotFoundIsNotCached(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.Temperature[1] = 30

	channel := &control.Channel{}
	launcher := &invokertest.Launcher{Channel: channel, Library: lib, Installed: []string{}}
	inv := invoker.New(channel, launcher, []string{invokertest.HelperPath}, 0, invokertest.Logger())
	d := discovery.New(inv, nil, discovery.Differential, invokertest.Logger())

	_, err := d.Valid(context.Background(), discovery.Temperature, 1)
	require.ErrorIs(t, err, invoker.ErrHelperNotFound)
	_, probed := d.Cache().Lookup(discovery.Temperature, 1)
	require.False(t, probed)

	launcher.Installed = nil
	valid, err := d.Valid(context.Background(), discovery.Temperature, 1)
	require.NoError(t, err)
	require.True(t, valid)
}

func TestCancelledProbeIsNotCached(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.Temperature[1] = 30

	d := newDiscovery(lib, nil, discovery.Differential)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Valid(ctx, discovery.Temperature, 1)
	require.ErrorIs(t, err, context.Canceled)

	_, probed := d.Cache().Lookup(discovery.Temperature, 1)
	require.False(t, probed)
}

func TestParse(t *testing.T) {
	cat, err := discovery.ParseCategory("pwm")
	require.NoError(t, err)
	require.Equal(t, discovery.PWM, cat)

	_, err = discovery.ParseCategory("volts")
	require.ErrorIs(t, err, discovery.ErrUnknownCategory)

	mode, err := discovery.ParsePWMMode("")
	require.NoError(t, err)
	require.Equal(t, discovery.Differential, mode)

	_, err = discovery.ParsePWMMode("guess")
	require.Error(t, err)
}
