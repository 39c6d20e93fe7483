package sensors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/invoker/invokertest"
	"github.com/oblq/qnapec/modules/sensors"
)

func newSensors(t *testing.T) (*sensors.Sensors, *invokertest.Library) {
	t.Helper()

	lib := invokertest.NewLibrary()
	// fan 5 present, fan 7 unplugged
	lib.FanStatus[5], lib.FanSpeed[5], lib.PWM[5] = 0, 1800, 100
	lib.FanStatus[7], lib.FanSpeed[7], lib.PWM[7] = 0, 65535, 100
	lib.Aliases[5] = []uint8{7}
	lib.Temperature[1] = 36.6
	lib.Temperature[7] = -1

	tables := sensors.Tables{
		Fan:         []uint8{5, 7},
		PWM:         []uint8{5, 7},
		Temperature: []uint8{1, 7},
	}

	inv, _ := invokertest.New(lib)
	d := discovery.New(inv, tables.PWM, discovery.Differential, invokertest.Logger())
	return sensors.New(d, inv, tables, invokertest.Logger()), lib
}

func TestVisible(t *testing.T) {
	s, _ := newSensors(t)
	ctx := context.Background()

	require.True(t, s.Visible(ctx, discovery.Fan, 0))
	require.False(t, s.Visible(ctx, discovery.Fan, 1))
	require.False(t, s.Visible(ctx, discovery.Fan, 2))
	require.True(t, s.Visible(ctx, discovery.PWM, 0))
	require.False(t, s.Visible(ctx, discovery.PWM, 1))
	require.True(t, s.Visible(ctx, discovery.Temperature, 0))
	require.False(t, s.Visible(ctx, discovery.Temperature, 1))
}

func TestRead(t *testing.T) {
	s, _ := newSensors(t)
	ctx := context.Background()

	v, err := s.Read(ctx, discovery.Fan, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1800), v)

	v, err = s.Read(ctx, discovery.PWM, 0)
	require.NoError(t, err)
	require.Equal(t, int64(100), v)

	v, err = s.Read(ctx, discovery.Temperature, 0)
	require.NoError(t, err)
	require.Equal(t, int64(36600), v)

	_, err = s.Read(ctx, discovery.Fan, 1)
	require.ErrorIs(t, err, sensors.ErrInvalidChannel)

	_, err = s.Read(ctx, discovery.Temperature, 9)
	require.ErrorIs(t, err, sensors.ErrNoChannel)
}

func TestWrite(t *testing.T) {
	s, lib := newSensors(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, discovery.PWM, 0, 200))
	require.Equal(t, uint32(200), lib.GetPWM(5))

	require.ErrorIs(t, s.Write(ctx, discovery.PWM, 0, 256), sensors.ErrOutOfRange)
	require.ErrorIs(t, s.Write(ctx, discovery.PWM, 0, -1), sensors.ErrOutOfRange)
	require.ErrorIs(t, s.Write(ctx, discovery.Fan, 0, 10), sensors.ErrNotSupported)
	require.ErrorIs(t, s.Write(ctx, discovery.PWM, 1, 10), sensors.ErrInvalidChannel)
}

func TestList(t *testing.T) {
	s, _ := newSensors(t)

	readings, err := s.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []sensors.Reading{
		{Category: "fan", Index: 0, Channel: 5, Value: 1800},
		{Category: "pwm", Index: 0, Channel: 5, Value: 100},
		{Category: "temp", Index: 0, Channel: 1, Value: 36600},
	}, readings)
}

func TestDefaultTables(t *testing.T) {
	tables := sensors.DefaultTables()
	require.Equal(t, []uint8{5, 7, 10, 11, 25, 35}, tables.Fan)
	require.Equal(t, []uint8{5, 7, 25, 35}, tables.PWM)
	require.Equal(t, []uint8{1, 7, 10, 11, 38}, tables.Temperature)
}
