package discovery

import (
	"context"
	"fmt"

	"github.com/oblq/qnapec/modules/qnap"
)

// checkFan stops at the first probe that fails and records the result under
// cat.
func (d *Discovery) checkFan(ctx context.Context, c qnap.Caller, cat Category, id uint8) error {
	status, err := qnap.FanStatus(ctx, c, id, false)
	if err != nil {
		return d.reject(ctx, cat, id, err)
	}
	if status != 0 {
		d.store(cat, id, false, fmt.Sprintf("fan status %d", status))
		return nil
	}

	speed, err := qnap.FanSpeed(ctx, c, id, false)
	if err != nil {
		return d.reject(ctx, cat, id, err)
	}
	if speed == qnap.FanSpeedAbsent {
		d.store(cat, id, false, "no fan connected")
		return nil
	}

	pwm, err := qnap.FanPWM(ctx, c, id, false)
	if err != nil {
		return d.reject(ctx, cat, id, err)
	}
	if pwm > qnap.MaxPWM {
		d.store(cat, id, false, fmt.Sprintf("pwm %d out of range", pwm))
		return nil
	}

	d.store(cat, id, true, "fan probes succeeded")
	return nil
}
