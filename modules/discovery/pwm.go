package discovery

import (
	"context"
	"fmt"

	"github.com/oblq/qnapec/modules/qnap"
)

// pwmStep is the perturbation applied to the channel under test.
const pwmStep = 5

// checkPWM perturbs id and watches which unchecked candidates follow it.
// Candidates that move together with id form an alias group: one member with
// a working fan is kept, the others are duplicates. Candidates that did not
// move stay unchecked.
func (d *Discovery) checkPWM(ctx context.Context, c qnap.Caller, id uint8) error {
	candidates := d.candidates(id)

	initial := make(map[uint8]uint32, len(candidates))
	for _, ch := range candidates {
		if _, probed := d.cache.Lookup(PWM, ch); probed {
			continue
		}
		v, err := qnap.FanPWM(ctx, c, ch, false)
		if err != nil {
			if err := d.reject(ctx, PWM, ch, err); err != nil {
				return err
			}
			continue
		}
		if v > qnap.MaxPWM {
			d.store(PWM, ch, false, fmt.Sprintf("pwm %d out of range", v))
			continue
		}
		initial[ch] = v
	}

	start, ok := initial[id]
	if !ok {
		return nil
	}

	target := start + pwmStep
	if start > qnap.MaxPWM-pwmStep {
		target = start - pwmStep
	}
	if err := qnap.SetFanPWM(ctx, c, id, uint8(target), false); err != nil {
		return d.reject(ctx, PWM, id, err)
	}

	changed, readErr := d.reread(ctx, c, candidates, initial, start)

	if err := qnap.SetFanPWM(ctx, c, id, uint8(start), false); err != nil {
		d.logger.Warn("unable to restore pwm after probe", "channel", id, "pwm", start, "error", err)
		if err := unclassifiable(ctx, err); err != nil && readErr == nil {
			readErr = err
		}
	}
	if readErr != nil {
		return readErr
	}

	after, ok := changed[id]
	if !ok {
		return nil
	}
	if after == start {
		d.store(PWM, id, false, "pwm did not follow the set value")
		return nil
	}

	var group []uint8
	for _, ch := range candidates {
		if v, ok := changed[ch]; ok && v == after && initial[ch] == start {
			group = append(group, ch)
		}
	}

	elected, found, err := d.elect(ctx, c, group)
	if err != nil {
		return err
	}
	for _, ch := range group {
		switch {
		case found && ch == elected:
			d.store(PWM, ch, true, fmt.Sprintf("elected in alias group %v", group))
		case found:
			d.store(PWM, ch, false, fmt.Sprintf("alias of channel %d", elected))
		default:
			d.store(PWM, ch, false, fmt.Sprintf("no fan behind alias group %v", group))
		}
	}
	return nil
}

// reread reads back the candidates whose initial value was start. A read
// failure classifies the candidate as invalid.
func (d *Discovery) reread(ctx context.Context, c qnap.Caller, candidates []uint8, initial map[uint8]uint32, start uint32) (map[uint8]uint32, error) {
	changed := make(map[uint8]uint32, len(initial))
	for _, ch := range candidates {
		if v, ok := initial[ch]; !ok || v != start {
			continue
		}
		v, err := qnap.FanPWM(ctx, c, ch, false)
		if err != nil {
			if err := d.reject(ctx, PWM, ch, err); err != nil {
				return nil, err
			}
			continue
		}
		changed[ch] = v
	}
	return changed, nil
}

// elect returns the lowest group member with a readable fan speed.
func (d *Discovery) elect(ctx context.Context, c qnap.Caller, group []uint8) (uint8, bool, error) {
	for _, ch := range group {
		speed, err := qnap.FanSpeed(ctx, c, ch, false)
		if err != nil {
			if err := unclassifiable(ctx, err); err != nil {
				return 0, false, err
			}
			continue
		}
		if speed != qnap.FanSpeedAbsent {
			return ch, true, nil
		}
	}
	return 0, false, nil
}
