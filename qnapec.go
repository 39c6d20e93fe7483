package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oblq/qnapec/modules/control"
	"github.com/oblq/qnapec/modules/discovery"
	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/query"
	"github.com/oblq/qnapec/modules/sensors"
)

// QNAPEC is the daemon: it owns the control channel the helpers talk to,
// serves the query socket and runs the fan curve controllers.
type QNAPEC struct {
	mutex   sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	running bool

	configPath string
	configStat os.FileInfo
	config     *Config
	logger     *slog.Logger

	channel *control.Channel
	sensors *sensors.Sensors

	tempSources    map[string]TempSource
	fanControllers map[string]FanController

	// prepared target list with parsed FanController and index
	targets map[string]*target
}

// New returns a daemon spawning real helper processes. configPath is
// watched for controller changes, an empty path disables reloading.
func New(configPath string, config *Config, logger *slog.Logger) (*QNAPEC, error) {
	channel := &control.Channel{}
	launcher := invoker.ProcessLauncher{
		Env:        config.helperEnv(),
		Credential: config.credential(),
		Logger:     logger,
	}
	return newQNAPEC(configPath, config, channel, launcher, logger)
}

func newQNAPEC(configPath string, config *Config, channel *control.Channel, launcher invoker.Launcher, logger *slog.Logger) (*QNAPEC, error) {
	mode, err := discovery.ParsePWMMode(config.PWMDetection)
	if err != nil {
		return nil, err
	}

	inv := invoker.New(channel, launcher, config.HelperPaths, *config.HelperTimeout, logger)
	d := discovery.New(inv, config.Channels.PWM, mode, logger)
	s := sensors.New(d, inv, *config.Channels, logger)

	ec := ecSource{sensors: s}
	q := &QNAPEC{
		configPath: configPath,
		config:     config,
		logger:     logger,
		channel:    channel,
		sensors:    s,
		tempSources: map[string]TempSource{
			ec.Name():          ec,
			cliSource{}.Name(): cliSource{},
		},
		fanControllers: map[string]FanController{
			ec.Name(): ec,
		},
		targets: make(map[string]*target),
	}

	if configPath != "" {
		if q.configStat, err = os.Stat(configPath); err != nil {
			logger.Warn("config file not watched", "path", configPath, "error", err)
		}
	}

	if err := q.parseTargetsMap(); err != nil {
		return nil, err
	}
	return q, nil
}

func (c *Config) credential() *syscall.Credential {
	if c.HelperUID == nil {
		return nil
	}
	credential := &syscall.Credential{Uid: *c.HelperUID, Gid: *c.HelperUID}
	if c.HelperGID != nil {
		credential.Gid = *c.HelperGID
	}
	return credential
}

// Run serves the control and query sockets and runs the controllers until
// ctx is cancelled or a server fails.
func (q *QNAPEC) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, path := range []string{q.config.ControlSocket, q.config.QuerySocket} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
	}

	controlServer := control.NewServer(q.channel, q.config.ControlSocket, q.logger)
	if q.config.HelperUID != nil {
		controlServer.AllowUID(int(*q.config.HelperUID))
	}
	queryServer := query.NewServer(q.sensors, q.config.QuerySocket, q.logger)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, serve := range []func(context.Context) error{controlServer.Serve, queryServer.Serve} {
		wg.Add(1)
		go func(serve func(context.Context) error) {
			defer wg.Done()
			if err := serve(ctx); err != nil {
				errs <- err
				cancel()
			}
		}(serve)
	}

	q.StartMonitoring(ctx)
	<-ctx.Done()
	q.StopMonitoring()

	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

// parseTargetsMap parse the list of targets by name,
// extracting the fan controller and the corresponding pwm index.
func (q *QNAPEC) parseTargetsMap() error {
	targets := make(map[string]*target, len(q.config.TargetsMap))
	for targetName, sourceIndex := range q.config.TargetsMap {
		coupleArr := strings.SplitN(sourceIndex, ".", 2)
		if len(coupleArr) < 2 {
			return fmt.Errorf("targets_map value for %s must be a source and one of its pwm indexes separated by a dot. eg.: `ec.0`", targetName)
		}
		sourceName, index := coupleArr[0], coupleArr[1]

		fanController, ok := q.fanControllers[sourceName]
		if !ok {
			return fmt.Errorf("no such fan controller %s", sourceName)
		}
		i, err := strconv.Atoi(index)
		if err != nil {
			return fmt.Errorf("target index for %s is not a valid integer", targetName)
		}
		targets[targetName] = &target{
			fanController: fanController,
			index:         i,
		}
	}

	q.targets = targets
	return nil
}

// StartMonitoring start the monitoring loop,
// checking temps and pwms. Without controllers the loop still runs when a
// config file is watched, so that controllers added later are picked up.
func (q *QNAPEC) StartMonitoring(ctx context.Context) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.running || (len(q.config.Controllers) == 0 && q.configPath == "") {
		return
	}
	q.running = true

	q.ticker = time.NewTicker(q.config.CheckInterval)
	q.stop = make(chan struct{})
	go q.monitor(ctx, q.ticker, q.stop)
}

// StopMonitoring stop the monitoring loop, it does not wait for a check in
// progress.
func (q *QNAPEC) StopMonitoring() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if !q.running {
		return
	}
	q.ticker.Stop()
	close(q.stop)
	q.running = false
}

func (q *QNAPEC) monitor(ctx context.Context, ticker *time.Ticker, stop chan struct{}) {
	q.checkTemperatures(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			q.checkTemperatures(ctx)
			q.checkConfig(ctx)
		}
	}
}

// checkTemperatures is periodically called from the ticker to check the
// temperature for any of the controllers.
func (q *QNAPEC) checkTemperatures(ctx context.Context) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	var temps []any

	// grab the greater values divided by target first
	neededPWMs := make(map[string]uint8)
	for _, controller := range q.config.Controllers {
		src := controller.source()
		ts, ok := q.tempSources[src.Source]
		if !ok {
			q.logger.Warn("no such temp source", "controller", controller.Name, "source", src.Source)
			continue
		}

		temp, err := ts.GetTemp(ctx, src.Arg)
		if err != nil {
			q.logger.Warn("unable to get temperature", "controller", controller.Name, "error", err)
			continue
		}
		temps = append(temps, controller.Name, temp)

		// grab the maximum needed pwm value for every target
		for target, data := range controller.getNeededPWMs(temp) {
			if data.pwm >= neededPWMs[target] {
				neededPWMs[target] = data.pwm
			}
		}
	}

	// set the needed pwm if different from the current value
	for name, pwm := range neededPWMs {
		t, ok := q.targets[name]
		if !ok {
			q.logger.Warn("no such target", "target", name)
			continue
		}

		if !t.written || t.pwm != pwm {
			if err := t.fanController.SetChannelPWM(ctx, t.index, pwm); err != nil {
				q.logger.Warn("unable to set pwm", "target", name, "pwm", pwm, "error", err)
				continue
			}
			t.pwm, t.written = pwm, true
			continue
		}

		// correct misalignment
		current, err := t.fanController.GetChannelPWM(ctx, t.index)
		if err != nil {
			q.logger.Warn("unable to read pwm", "target", name, "error", err)
		} else if current != pwm {
			q.logger.Info("correcting pwm", "target", name, "current", current, "pwm", pwm)
			if err := t.fanController.SetChannelPWM(ctx, t.index, pwm); err != nil {
				q.logger.Warn("unable to set pwm", "target", name, "pwm", pwm, "error", err)
			}
		}
	}

	names := make([]string, 0, len(q.targets))
	for name := range q.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	pwms := make([]any, 0, 2*len(names))
	for _, name := range names {
		pwms = append(pwms, name, q.targets[name].pwm)
	}

	q.logger.Debug("temperatures checked", slog.Group("temps", temps...), slog.Group("pwm", pwms...))
}

// checkConfig is periodically called from the ticker to reload the
// controllers when the config file changes.
func (q *QNAPEC) checkConfig(ctx context.Context) {
	if q.configPath == "" {
		return
	}

	stat, err := os.Stat(q.configPath)
	if err != nil {
		q.logger.Warn("unable to stat config file", "path", q.configPath, "error", err)
		return
	}

	q.mutex.Lock()
	changed := q.configStat == nil ||
		stat.Size() != q.configStat.Size() || !stat.ModTime().Equal(q.configStat.ModTime())
	q.mutex.Unlock()
	if !changed {
		return
	}

	if err := q.reloadConfig(ctx, stat); err != nil {
		q.logger.Warn("config not reloaded", "path", q.configPath, "error", err)
	}
}

func (q *QNAPEC) reloadConfig(ctx context.Context, stat os.FileInfo) error {
	config, err := LoadConfig(q.configPath)
	if err != nil {
		return err
	}

	q.StopMonitoring()

	q.mutex.Lock()
	q.configStat = stat
	if !reflect.DeepEqual(q.config.static(), config.static()) {
		q.logger.Warn("only controllers, targets_map and check_interval are reloaded, restart to apply the other changes")
	}
	q.config.Controllers = config.Controllers
	q.config.TargetsMap = config.TargetsMap
	q.config.CheckInterval = config.CheckInterval
	err = q.parseTargetsMap()
	q.mutex.Unlock()
	if err != nil {
		return err
	}

	q.logger.Info("config updated", "path", q.configPath)
	q.StartMonitoring(ctx)
	return nil
}

// static returns c without the fields reloaded at runtime.
func (c Config) static() Config {
	c.Controllers = nil
	c.TargetsMap = nil
	c.CheckInterval = 0
	c.LogLevel = ""
	return c
}
