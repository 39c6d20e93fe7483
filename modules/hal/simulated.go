package hal

import (
	"errors"
	"fmt"
	"math"
)

// ErrSimulatedFault stands for the entry points that crash the real library
// (an integer division by zero for some channels).
var ErrSimulatedFault = errors.New("simulated library fault")

// simulatedLibrary reproduces the values returned by libuLinux_hal on a
// TS-673A. It is stateless: every helper process starts from scratch, so a
// set_fan_speed is accepted but never observable.
type simulatedLibrary struct{}

func NewSimulatedLibrary() Library {
	return simulatedLibrary{}
}

func (simulatedLibrary) CallUint8Uint32Pointer(name string, a uint8) (int8, uint32, error) {
	switch name {
	case "ec_sys_get_fan_status":
		return simulatedFanStatus(a)
	case "ec_sys_get_fan_speed":
		return simulatedFanSpeed(a)
	case "ec_sys_get_fan_pwm":
		return simulatedFanPWM(a)
	default:
		return 0, 0, fmt.Errorf("%w: %s in simulated library", ErrSymbolNotFound, name)
	}
}

func (simulatedLibrary) CallUint8DoublePointer(name string, a uint8) (int8, float64, error) {
	if name != "ec_sys_get_temperature" {
		return 0, 0, fmt.Errorf("%w: %s in simulated library", ErrSymbolNotFound, name)
	}
	return simulatedTemperature(a)
}

func (simulatedLibrary) CallUint8Uint8(name string, a, _ uint8) (int8, error) {
	if name != "ec_sys_set_fan_speed" {
		return 0, fmt.Errorf("%w: %s in simulated library", ErrSymbolNotFound, name)
	}
	switch {
	case a <= 7, a >= 20 && a <= 25, a >= 30 && a <= 35:
		return 0, nil
	default:
		return -1, nil
	}
}

func (simulatedLibrary) Close() error { return nil }

func simulatedFanStatus(ch uint8) (int8, uint32, error) {
	switch {
	case ch <= 1, ch == 6, ch == 10, ch == 11:
		return 0, 0, nil
	case ch >= 2 && ch <= 5, ch == 7:
		return 0, 1, nil
	case ch >= 20 && ch <= 25, ch >= 30 && ch <= 35:
		return 0, 0, nil
	default:
		return -1, 0, nil
	}
}

func simulatedFanSpeed(ch uint8) (int8, uint32, error) {
	switch {
	case ch == 0:
		return 0, 651, nil
	case ch == 1:
		return 0, 661, nil
	case ch == 6:
		return 0, 891, nil
	case ch == 10, ch == 11:
		return 0, 0, fmt.Errorf("%w: ec_sys_get_fan_speed(%d)", ErrSimulatedFault, ch)
	case ch == 33:
		return 0, 4976, nil
	case ch == 34:
		return 0, 12096, nil
	case ch >= 2 && ch <= 5, ch == 7, ch >= 20 && ch <= 25, ch >= 30 && ch <= 35:
		return 0, 65535, nil
	default:
		return -1, 0, nil
	}
}

func simulatedFanPWM(ch uint8) (int8, uint32, error) {
	switch {
	case ch <= 7, ch >= 20 && ch <= 25:
		return 0, 76, nil
	case ch >= 30 && ch <= 35:
		return 0, 650, nil
	default:
		return -1, 0, nil
	}
}

func simulatedTemperature(ch uint8) (int8, float64, error) {
	switch {
	case ch == 0:
		return 0, 29, nil
	case ch == 1:
		return 0, -1, nil
	case ch == 5:
		return 0, 23, nil
	case ch == 6:
		return 0, 25, nil
	case ch == 7:
		return 0, 30, nil
	case ch == 10, ch == 11:
		return 0, math.Inf(1), nil
	case ch == 15:
		return 0, -128, nil
	case ch >= 16 && ch <= 38:
		return 0, -1, nil
	default:
		return -1, 0, nil
	}
}
