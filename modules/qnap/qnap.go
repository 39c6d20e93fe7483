// Package qnap wraps the vendor entry points used to monitor and drive the
// embedded controller.
package qnap

import (
	"context"

	"github.com/oblq/qnapec/modules/call"
)

// Vendor entry points.
const (
	GetFanStatus   = "ec_sys_get_fan_status"
	GetFanSpeed    = "ec_sys_get_fan_speed"
	GetFanPWM      = "ec_sys_get_fan_pwm"
	GetTemperature = "ec_sys_get_temperature"
	SetFanSpeed    = "ec_sys_set_fan_speed"
)

const (
	// FanSpeedAbsent is the speed reported for a fan header with nothing
	// connected.
	FanSpeedAbsent = 65535

	MaxPWM = 255
)

// Default channel id tables, indexed by the position exposed to readers.
var (
	DefaultFanChannels  = []uint8{5, 7, 10, 11, 25, 35}
	DefaultPWMChannels  = []uint8{5, 7, 25, 35}
	DefaultTempChannels = []uint8{1, 7, 10, 11, 38}
)

// Caller performs one vendor call. Both *invoker.Invoker and
// *invoker.Conversation implement it.
type Caller interface {
	Invoke(ctx context.Context, pending call.Call, logFailure bool) (call.Call, error)
}

func FanStatus(ctx context.Context, c Caller, ch uint8, logFailure bool) (uint32, error) {
	result, err := c.Invoke(ctx, call.NewUint32Out(GetFanStatus, ch), logFailure)
	if err != nil {
		return 0, err
	}
	return result.Argument2Uint32, nil
}

func FanSpeed(ctx context.Context, c Caller, ch uint8, logFailure bool) (uint32, error) {
	result, err := c.Invoke(ctx, call.NewUint32Out(GetFanSpeed, ch), logFailure)
	if err != nil {
		return 0, err
	}
	return result.Argument2Uint32, nil
}

func FanPWM(ctx context.Context, c Caller, ch uint8, logFailure bool) (uint32, error) {
	result, err := c.Invoke(ctx, call.NewUint32Out(GetFanPWM, ch), logFailure)
	if err != nil {
		return 0, err
	}
	return result.Argument2Uint32, nil
}

// Temperature returns the reading of ch in millidegrees Celsius.
func Temperature(ctx context.Context, c Caller, ch uint8, logFailure bool) (int64, error) {
	result, err := c.Invoke(ctx, call.NewDoubleOut(GetTemperature, ch), logFailure)
	if err != nil {
		return 0, err
	}
	return result.Argument2Int64, nil
}

func SetFanPWM(ctx context.Context, c Caller, ch, value uint8, logFailure bool) error {
	_, err := c.Invoke(ctx, call.NewUint8(SetFanSpeed, ch, value), logFailure)
	return err
}
