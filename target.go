package main

type targetData struct {
	pwm uint8

	lastUpdatedTemp    float64
	sortedMappingTemps []float64
}

type target struct {
	// last pwm written
	pwm     uint8
	written bool

	fanController FanController
	index         int
}
