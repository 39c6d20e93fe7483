// Package discovery works out which channel ids of the vendor library are
// backed by real hardware. Every probe result is memoized in a Cache.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/qnap"
)

type Category int

const (
	Fan Category = iota
	PWM
	Temperature

	categoryCount
)

var ErrUnknownCategory = errors.New("unknown channel category")

func (c Category) known() bool {
	return c >= 0 && c < categoryCount
}

func (c Category) String() string {
	switch c {
	case Fan:
		return "fan"
	case PWM:
		return "pwm"
	case Temperature:
		return "temp"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// ParseCategory accepts the names returned by Category.String.
func ParseCategory(s string) (Category, error) {
	for c := Category(0); c < categoryCount; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// PWMMode selects how PWM channels are validated.
type PWMMode string

const (
	// Differential perturbs each PWM channel and groups the channels that
	// follow each other, keeping one per group.
	Differential PWMMode = "differential"

	// FanMode applies the fan check to PWM channel ids.
	FanMode PWMMode = "fan"
)

func ParsePWMMode(s string) (PWMMode, error) {
	switch m := PWMMode(s); m {
	case Differential, FanMode:
		return m, nil
	case "":
		return Differential, nil
	default:
		return "", fmt.Errorf("unknown pwm detection mode %q", s)
	}
}

type Discovery struct {
	invoker       *invoker.Invoker
	cache         *Cache
	pwmCandidates []uint8
	mode          PWMMode
	logger        *slog.Logger
}

// New returns a Discovery issuing its probes through inv. pwmCandidates are
// the PWM channel ids compared against each other in Differential mode.
func New(inv *invoker.Invoker, pwmCandidates []uint8, mode PWMMode, logger *slog.Logger) *Discovery {
	return &Discovery{
		invoker:       inv,
		cache:         &Cache{},
		pwmCandidates: pwmCandidates,
		mode:          mode,
		logger:        logger,
	}
}

func (d *Discovery) Cache() *Cache {
	return d.cache
}

// Valid reports whether channel id of category cat is backed by hardware,
// probing it the first time. An error means the probe could not run at all
// and nothing was recorded.
func (d *Discovery) Valid(ctx context.Context, cat Category, id uint8) (bool, error) {
	if !cat.known() {
		return false, fmt.Errorf("%w: %d", ErrUnknownCategory, int(cat))
	}
	if valid, probed := d.cache.Lookup(cat, id); probed {
		return valid, nil
	}

	conversation := d.invoker.Acquire()
	defer conversation.Release()

	// another caller may have finished the same probe while we waited
	if valid, probed := d.cache.Lookup(cat, id); probed {
		return valid, nil
	}

	var err error
	switch {
	case cat == Fan:
		err = d.checkFan(ctx, conversation, Fan, id)
	case cat == PWM && d.mode == FanMode:
		err = d.checkFan(ctx, conversation, PWM, id)
	case cat == PWM:
		err = d.checkPWM(ctx, conversation, id)
	case cat == Temperature:
		err = d.checkTemperature(ctx, conversation, id)
	}
	if err != nil {
		return false, err
	}

	valid, _ := d.cache.Lookup(cat, id)
	return valid, nil
}

func (d *Discovery) store(cat Category, id uint8, valid bool, reason string) {
	if d.cache.Store(cat, id, valid) {
		d.logger.Debug("channel classified", "category", cat, "channel", id, "valid", valid, "reason", reason)
	}
}

// reject classifies id as invalid after a failed probe, unless the failure
// says nothing about the channel, in which case it is returned.
func (d *Discovery) reject(ctx context.Context, cat Category, id uint8, err error) error {
	if err := unclassifiable(ctx, err); err != nil {
		return err
	}
	d.store(cat, id, false, err.Error())
	return nil
}

func unclassifiable(ctx context.Context, err error) error {
	if errors.Is(err, invoker.ErrHelperNotFound) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return nil
}

// candidates returns the configured PWM ids plus id, sorted and deduplicated.
func (d *Discovery) candidates(id uint8) []uint8 {
	seen := map[uint8]bool{id: true}
	out := []uint8{id}
	for _, ch := range d.pwmCandidates {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ qnap.Caller = (*invoker.Conversation)(nil)
