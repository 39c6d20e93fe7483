// Package sensors exposes fan, pwm and temperature channels by index, hiding
// the channels discovery found to be unbacked.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/qnap"
)

var (
	ErrNoChannel      = errors.New("no channel at index")
	ErrInvalidChannel = errors.New("channel not backed by hardware")
	ErrNotSupported   = errors.New("operation not supported")
	ErrOutOfRange     = errors.New("value out of range")
)

// Tables maps the index of each category to a vendor channel id.
type Tables struct {
	Fan         []uint8 `yaml:"fan"`
	PWM         []uint8 `yaml:"pwm"`
	Temperature []uint8 `yaml:"temp"`
}

func DefaultTables() Tables {
	return Tables{
		Fan:         append([]uint8(nil), qnap.DefaultFanChannels...),
		PWM:         append([]uint8(nil), qnap.DefaultPWMChannels...),
		Temperature: append([]uint8(nil), qnap.DefaultTempChannels...),
	}
}

func (t Tables) table(cat discovery.Category) []uint8 {
	switch cat {
	case discovery.Fan:
		return t.Fan
	case discovery.PWM:
		return t.PWM
	case discovery.Temperature:
		return t.Temperature
	default:
		return nil
	}
}

// Reading is one channel as reported by List. Value is rpm for fans, 0..255
// for pwm and millidegrees Celsius for temperatures.
type Reading struct {
	Category string `cbor:"category"`
	Index    int    `cbor:"index"`
	Channel  uint8  `cbor:"channel"`
	Value    int64  `cbor:"value"`
	Error    string `cbor:"error,omitempty"`
}

type Sensors struct {
	discovery *discovery.Discovery
	invoker   *invoker.Invoker
	tables    Tables
	logger    *slog.Logger
}

func New(d *discovery.Discovery, inv *invoker.Invoker, tables Tables, logger *slog.Logger) *Sensors {
	return &Sensors{
		discovery: d,
		invoker:   inv,
		tables:    tables,
		logger:    logger,
	}
}

func (s *Sensors) Tables() Tables {
	return s.tables
}

func (s *Sensors) channel(cat discovery.Category, index int) (uint8, error) {
	table := s.tables.table(cat)
	if index < 0 || index >= len(table) {
		return 0, fmt.Errorf("%w: %s %d", ErrNoChannel, cat, index)
	}
	return table[index], nil
}

// resolve maps index to a channel id that discovery accepted.
func (s *Sensors) resolve(ctx context.Context, cat discovery.Category, index int) (uint8, error) {
	ch, err := s.channel(cat, index)
	if err != nil {
		return 0, err
	}
	valid, err := s.discovery.Valid(ctx, cat, ch)
	if err != nil {
		return 0, err
	}
	if !valid {
		return 0, fmt.Errorf("%w: %s %d (channel %d)", ErrInvalidChannel, cat, index, ch)
	}
	return ch, nil
}

// Visible reports whether index of cat maps to a valid channel.
func (s *Sensors) Visible(ctx context.Context, cat discovery.Category, index int) bool {
	_, err := s.resolve(ctx, cat, index)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrInvalidChannel), errors.Is(err, ErrNoChannel):
	default:
		s.logger.Warn("unable to validate channel", "category", cat, "index", index, "error", err)
	}
	return false
}

// Read returns the current value of index of cat.
func (s *Sensors) Read(ctx context.Context, cat discovery.Category, index int) (int64, error) {
	ch, err := s.resolve(ctx, cat, index)
	if err != nil {
		return 0, err
	}

	switch cat {
	case discovery.Fan:
		speed, err := qnap.FanSpeed(ctx, s.invoker, ch, true)
		return int64(speed), err
	case discovery.PWM:
		pwm, err := qnap.FanPWM(ctx, s.invoker, ch, true)
		return int64(pwm), err
	case discovery.Temperature:
		return qnap.Temperature(ctx, s.invoker, ch, true)
	default:
		return 0, ErrNotSupported
	}
}

// Write sets the pwm of index, the only writable category.
func (s *Sensors) Write(ctx context.Context, cat discovery.Category, index int, value int64) error {
	if cat != discovery.PWM {
		return fmt.Errorf("%w: write %s", ErrNotSupported, cat)
	}
	if value < 0 || value > qnap.MaxPWM {
		return fmt.Errorf("%w: pwm %d", ErrOutOfRange, value)
	}

	ch, err := s.resolve(ctx, cat, index)
	if err != nil {
		return err
	}
	return qnap.SetFanPWM(ctx, s.invoker, ch, uint8(value), true)
}

// List reads every visible channel. Failed reads are reported in the
// Reading, not as an error.
func (s *Sensors) List(ctx context.Context) ([]Reading, error) {
	var readings []Reading
	for _, cat := range []discovery.Category{discovery.Fan, discovery.PWM, discovery.Temperature} {
		for index, ch := range s.tables.table(cat) {
			if err := ctx.Err(); err != nil {
				return readings, err
			}
			if !s.Visible(ctx, cat, index) {
				continue
			}

			reading := Reading{Category: cat.String(), Index: index, Channel: ch}
			value, err := s.Read(ctx, cat, index)
			if err != nil {
				reading.Error = err.Error()
			}
			reading.Value = value
			readings = append(readings, reading)
		}
	}
	return readings, nil
}
