package hal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/call"
)

func TestSimulatedLibrary(t *testing.T) {
	lib, err := Open(Simulated)
	require.NoError(t, err)
	defer lib.Close()

	proxy := NewProxy(lib)

	tests := []struct {
		name string
		call call.Call
		ret  int8
		u32  uint32
		i64  int64
		err  error
	}{
		{name: "fan 0 status", call: call.NewUint32Out("ec_sys_get_fan_status", 0), u32: 0},
		{name: "fan 7 status", call: call.NewUint32Out("ec_sys_get_fan_status", 7), u32: 1},
		{name: "fan 9 status", call: call.NewUint32Out("ec_sys_get_fan_status", 9), ret: -1, u32: 0},
		{name: "fan 6 speed", call: call.NewUint32Out("ec_sys_get_fan_speed", 6), u32: 891},
		{name: "fan 35 speed", call: call.NewUint32Out("ec_sys_get_fan_speed", 35), u32: 65535},
		{name: "fan 10 speed", call: call.NewUint32Out("ec_sys_get_fan_speed", 10), err: ErrSimulatedFault},
		{name: "fan 30 pwm", call: call.NewUint32Out("ec_sys_get_fan_pwm", 30), u32: 650},
		{name: "temp 7", call: call.NewDoubleOut("ec_sys_get_temperature", 7), i64: 30000},
		{name: "temp 1", call: call.NewDoubleOut("ec_sys_get_temperature", 1), i64: -1000},
		{name: "temp 10", call: call.NewDoubleOut("ec_sys_get_temperature", 10), err: ErrInvalidValue},
		{name: "set 5", call: call.NewUint8("ec_sys_set_fan_speed", 5, 100)},
		{name: "set 40", call: call.NewUint8("ec_sys_set_fan_speed", 40, 100), ret: -1},
		{name: "unknown", call: call.NewUint32Out("ec_sys_get_nothing", 0), err: ErrSymbolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := proxy.Invoke(tt.call)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.ret, got.ReturnValue)
			switch tt.call.FunctionType {
			case call.Uint8Uint32Pointer:
				require.Equal(t, tt.u32, got.Argument2Uint32)
			case call.Uint8DoublePointer:
				require.Equal(t, tt.i64, got.Argument2Int64)
			}
		})
	}
}

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open("/nonexistent/libuLinux_hal.so")
	require.ErrorIs(t, err, ErrLibraryLoad)
}
