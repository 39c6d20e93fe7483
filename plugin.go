package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oblq/qnapec/internal/exec"
	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/sensors"
)

const (
	ecSourceName  = "ec"
	cliSourceName = "cli"
)

type Source interface {
	Name() string
}

// TempSource returns a temperature in °C for a source specific arg.
type TempSource interface {
	Source
	GetTemp(ctx context.Context, arg string) (temp float64, err error)
}

// FanController reads and sets the pwm of a channel index.
type FanController interface {
	Source
	GetChannelPWM(ctx context.Context, index int) (pwm uint8, err error)
	SetChannelPWM(ctx context.Context, index int, pwm uint8) error
}

// ecSource reads and drives the embedded controller channels.
type ecSource struct {
	sensors *sensors.Sensors
}

func (ecSource) Name() string {
	return ecSourceName
}

func (s ecSource) GetTemp(ctx context.Context, arg string) (float64, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("temperature index %q is not a valid integer", arg)
	}
	millis, err := s.sensors.Read(ctx, discovery.Temperature, index)
	if err != nil {
		return 0, err
	}
	return float64(millis) / 1000, nil
}

func (s ecSource) GetChannelPWM(ctx context.Context, index int) (uint8, error) {
	pwm, err := s.sensors.Read(ctx, discovery.PWM, index)
	if err != nil {
		return 0, err
	}
	return uint8(pwm), nil
}

func (s ecSource) SetChannelPWM(ctx context.Context, index int, pwm uint8) error {
	return s.sensors.Write(ctx, discovery.PWM, index, int64(pwm))
}

// cliSource runs a shell command printing a temperature.
type cliSource struct{}

func (cliSource) Name() string {
	return cliSourceName
}

func (cliSource) GetTemp(ctx context.Context, cmd string) (temp float64, err error) {
	var tString string
	tString, err = exec.CommandPipe(ctx, cmd)
	if err != nil {
		return
	}
	if tString == "" {
		err = fmt.Errorf("temp command returned an empty string: `%s`", cmd)
		return
	}

	tString = strings.Trim(tString, " .")
	return strconv.ParseFloat(tString, 64)
}
