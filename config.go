package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/sensors"
)

const (
	defaultConfigPath    = "/etc/qnap-ec/qnap-ec.yaml"
	defaultLibrary       = "/usr/lib/libuLinux_hal.so"
	defaultControlSocket = "/run/qnap-ec/control.sock"
	defaultQuerySocket   = "/run/qnap-ec/query.sock"
	defaultHelperTimeout = 10 * time.Second
	defaultCheckInterval = 5 * time.Second

	helperName = "qnap-ec-helper"
)

var defaultHelperDirs = []string{
	"/usr/local/sbin",
	"/usr/local/bin",
	"/usr/sbin",
	"/usr/bin",
	"/sbin",
	"/bin",
}

type Config struct {
	// Library is the vendor library path handed to the helper, or
	// "simulated".
	Library string `yaml:"library"`

	// HelperPaths are tried in order until one can be started.
	HelperPaths []string `yaml:"helper_paths"`

	// HelperTimeout kills a helper that did not exit in time, 0 waits
	// forever. Unset means defaultHelperTimeout.
	HelperTimeout *time.Duration `yaml:"helper_timeout"`

	// HelperUID and HelperGID, when set, are the credentials the helper
	// runs with. Only a peer with HelperUID may use the control socket.
	HelperUID *uint32 `yaml:"helper_uid"`
	HelperGID *uint32 `yaml:"helper_gid"`

	ControlSocket string `yaml:"control_socket"`
	QuerySocket   string `yaml:"query_socket"`

	// PWMDetection is "differential" or "fan".
	PWMDetection string `yaml:"pwm_detection"`

	// Channels maps sensor indexes to vendor channel ids.
	Channels *sensors.Tables `yaml:"channels"`

	LogLevel string `yaml:"log_level"`

	// CheckInterval is the time between fan curve checks.
	CheckInterval time.Duration `yaml:"check_interval"`

	// a map containing arbitrary names associated with a source:index couple.
	// eg.: `cpu_fan: ec.0`
	TargetsMap map[string]string `yaml:"targets_map"`

	// Controllers map a temperature to the pwm of one or more targets.
	Controllers []*controller `yaml:"controllers"`
}

// LoadConfig reads path and applies the defaults. A missing file is
// reported with an error wrapping fs.ErrNotExist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Library == "" {
		c.Library = defaultLibrary
	}
	if len(c.HelperPaths) == 0 {
		for _, dir := range defaultHelperDirs {
			c.HelperPaths = append(c.HelperPaths, dir+"/"+helperName)
		}
	}
	if c.HelperTimeout == nil {
		timeout := defaultHelperTimeout
		c.HelperTimeout = &timeout
	}
	if c.ControlSocket == "" {
		c.ControlSocket = defaultControlSocket
	}
	if c.QuerySocket == "" {
		c.QuerySocket = defaultQuerySocket
	}
	if c.PWMDetection == "" {
		c.PWMDetection = string(discovery.Differential)
	}
	if c.Channels == nil {
		tables := sensors.DefaultTables()
		c.Channels = &tables
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := discovery.ParsePWMMode(c.PWMDetection); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.HelperTimeout != nil && *c.HelperTimeout < 0 {
		errs = append(errs, fmt.Errorf("helper_timeout must not be negative"))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check_interval must be positive"))
	}
	for _, p := range c.HelperPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("helper path %q is not absolute", p))
		}
	}
	for i, controller := range c.Controllers {
		if err := controller.validate(); err != nil {
			errs = append(errs, fmt.Errorf("controllers[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// helperEnv is the whole environment of the helper process.
func (c *Config) helperEnv() []string {
	return []string{
		"PATH=" + strings.Join(defaultHelperDirs, ":"),
		"QNAP_EC_CONTROL_SOCKET=" + c.ControlSocket,
		"QNAP_EC_LIBRARY=" + c.Library,
	}
}
