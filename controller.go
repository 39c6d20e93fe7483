package main

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

type tempSource struct {
	// Source is the name of the TempSource to read, "ec" or "cli".
	Source string `yaml:"source"`

	// Arg is the sensor index for "ec" and the shell command for "cli".
	Arg string `yaml:"arg"`
}

type controller struct {
	Name string `yaml:"name"`

	Temp tempSource `yaml:"temp"`

	// TempCmd is a direct command to get a temp in number format,
	// take precedence over 'temp' parameter.
	TempCmd string `yaml:"temp_cmd"`

	// MinTempChange is the minimum necessary change (in °C)
	// from the last pwm update to actually cause another update.
	MinTempChange float64 `yaml:"min_temp_change"`

	// Targets are the targets_map names with their temp/pwm mapping.
	Targets map[string]map[float64]uint8 `yaml:"targets"`

	targetsData map[string]*targetData
}

func (c *controller) source() tempSource {
	if c.TempCmd != "" {
		return tempSource{Source: cliSourceName, Arg: c.TempCmd}
	}
	return c.Temp
}

func (c *controller) validate() error {
	if c.Name == "" {
		return errors.New("missing name")
	}
	if src := c.source(); src.Source == "" {
		return fmt.Errorf("%s: missing temp source", c.Name)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%s: no targets", c.Name)
	}
	for name, mapping := range c.Targets {
		if len(mapping) == 0 {
			return fmt.Errorf("%s: empty mapping for target %s", c.Name, name)
		}
	}
	return nil
}

// getNeededPWMs returns, for each target, the pwm of the highest mapping
// temperature not above temp. A target is only updated once temp moved at
// least MinTempChange away from the temperature of its last update.
func (c *controller) getNeededPWMs(temp float64) map[string]*targetData {
	if c.targetsData == nil {
		c.targetsData = make(map[string]*targetData)
	}

	for name, mapping := range c.Targets {
		data, ok := c.targetsData[name]
		if !ok {
			data = &targetData{sortedMappingTemps: sortedTemps(mapping)}
			c.targetsData[name] = data
		} else if math.Abs(temp-data.lastUpdatedTemp) < c.MinTempChange {
			continue
		}

		data.pwm = 0
		for _, t := range data.sortedMappingTemps {
			if temp < t {
				break
			}
			data.pwm = mapping[t]
		}
		data.lastUpdatedTemp = temp
	}

	return c.targetsData
}

func sortedTemps(mapping map[float64]uint8) []float64 {
	temps := make([]float64, 0, len(mapping))
	for t := range mapping {
		temps = append(temps, t)
	}
	sort.Float64s(temps)
	return temps
}
