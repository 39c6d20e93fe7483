package invokertest

import (
	"fmt"
	"sync"

	"github.com/oblq/qnapec/modules/hal"
)

// Vendor entry points understood by Library.
const (
	fanStatus   = "ec_sys_get_fan_status"
	fanSpeed    = "ec_sys_get_fan_speed"
	fanPWM      = "ec_sys_get_fan_pwm"
	temperature = "ec_sys_get_temperature"
	setFanSpeed = "ec_sys_set_fan_speed"
)

// Library is a stateful vendor library. A channel missing from a map makes
// the corresponding entry point return -1.
type Library struct {
	mutex sync.Mutex

	FanStatus   map[uint8]uint32
	FanSpeed    map[uint8]uint32
	PWM         map[uint8]uint32
	Temperature map[uint8]float64

	// Aliases lists, per channel, the other channels that mirror a PWM set
	// on it.
	Aliases map[uint8][]uint8

	// Frozen channels accept a PWM set without changing.
	Frozen map[uint8]bool

	calls []string
}

func NewLibrary() *Library {
	return &Library{
		FanStatus:   make(map[uint8]uint32),
		FanSpeed:    make(map[uint8]uint32),
		PWM:         make(map[uint8]uint32),
		Temperature: make(map[uint8]float64),
		Aliases:     make(map[uint8][]uint8),
		Frozen:      make(map[uint8]bool),
	}
}

// Calls returns the calls made so far as "name(channel)".
func (l *Library) Calls() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return append([]string(nil), l.calls...)
}

// GetPWM returns the current PWM of ch.
func (l *Library) GetPWM(ch uint8) uint32 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.PWM[ch]
}

func (l *Library) record(name string, ch uint8) {
	l.calls = append(l.calls, fmt.Sprintf("%s(%d)", name, ch))
}

func (l *Library) CallUint8Uint32Pointer(name string, a uint8) (int8, uint32, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.record(name, a)

	var values map[uint8]uint32
	switch name {
	case fanStatus:
		values = l.FanStatus
	case fanSpeed:
		values = l.FanSpeed
	case fanPWM:
		values = l.PWM
	default:
		return 0, 0, fmt.Errorf("%w: %s", hal.ErrSymbolNotFound, name)
	}

	v, ok := values[a]
	if !ok {
		return -1, 0, nil
	}
	return 0, v, nil
}

func (l *Library) CallUint8DoublePointer(name string, a uint8) (int8, float64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.record(name, a)

	if name != temperature {
		return 0, 0, fmt.Errorf("%w: %s", hal.ErrSymbolNotFound, name)
	}
	v, ok := l.Temperature[a]
	if !ok {
		return -1, 0, nil
	}
	return 0, v, nil
}

func (l *Library) CallUint8Uint8(name string, a, b uint8) (int8, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.record(name, a)

	if name != setFanSpeed {
		return 0, fmt.Errorf("%w: %s", hal.ErrSymbolNotFound, name)
	}
	if _, ok := l.PWM[a]; !ok {
		return -1, nil
	}
	if l.Frozen[a] {
		return 0, nil
	}
	l.PWM[a] = uint32(b)
	for _, alias := range l.Aliases[a] {
		l.PWM[alias] = uint32(b)
	}
	return 0, nil
}

func (l *Library) Close() error { return nil }
