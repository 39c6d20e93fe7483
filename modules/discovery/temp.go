package discovery

import (
	"context"

	"github.com/oblq/qnapec/modules/qnap"
)

func (d *Discovery) checkTemperature(ctx context.Context, c qnap.Caller, id uint8) error {
	millis, err := qnap.Temperature(ctx, c, id, false)
	if err != nil {
		return d.reject(ctx, Temperature, id, err)
	}
	if millis < 0 {
		d.store(Temperature, id, false, "negative temperature")
		return nil
	}
	d.store(Temperature, id, true, "temperature probe succeeded")
	return nil
}
