// qnap-ec monitors and drives the fans of QNAP embedded controllers. The
// vendor library is never loaded in this process: every call is performed
// by a short lived qnap-ec-helper process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/oblq/qnapec/modules/query"
)

type globalOptions struct {
	Config  string `short:"c" long:"config" description:"configuration file" default:"/etc/qnap-ec/qnap-ec.yaml"`
	Socket  string `short:"s" long:"socket" description:"query socket, overrides the configuration"`
	Verbose bool   `short:"v" long:"verbose" description:"enable debug logging"`
}

var (
	options globalOptions
	parser  = flags.NewParser(&options, flags.Default)
)

const clientTimeout = time.Minute

func main() {
	parser.AddCommand("serve", "Run the daemon",
		"Serve the control and query sockets and run the fan curve controllers.", &serveCommand{})
	parser.AddCommand("list", "List the valid channels",
		"Print every channel backed by hardware with its current value.", &listCommand{})
	parser.AddCommand("read", "Read one channel",
		"Print the value of a fan (rpm), pwm (0-255) or temp (°C) channel index.", &readCommand{})
	parser.AddCommand("write", "Set a pwm channel",
		"Set the pwm (0-255) of a pwm channel index.", &writeCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	if options.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig falls back to the defaults when the default config file does
// not exist.
func loadConfig() (*Config, string, error) {
	config, err := LoadConfig(options.Config)
	if errors.Is(err, fs.ErrNotExist) && options.Config == defaultConfigPath {
		return DefaultConfig(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return config, options.Config, nil
}

type serveCommand struct{}

func (c *serveCommand) Execute(_ []string) error {
	config, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	level, _ := parseLogLevel(config.LogLevel)
	logger := newLogger(level)
	if options.Socket != "" {
		config.QuerySocket = options.Socket
	}
	if configPath == "" {
		logger.Warn("config file not found, using defaults", "path", options.Config)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := New(configPath, config, logger)
	if err != nil {
		return err
	}

	logger.Info("starting",
		"library", config.Library,
		"control_socket", config.ControlSocket,
		"query_socket", config.QuerySocket,
		"pwm_detection", config.PWMDetection)

	err = daemon.Run(ctx)
	logger.Info("exiting")
	return err
}

func queryClient() *query.Client {
	if options.Socket != "" {
		return query.NewClient(options.Socket)
	}
	if config, _, err := loadConfig(); err == nil {
		return query.NewClient(config.QuerySocket)
	}
	return query.NewClient(defaultQuerySocket)
}

func clientContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), clientTimeout)
}

type listCommand struct{}

func (c *listCommand) Execute(_ []string) error {
	ctx, cancel := clientContext()
	defer cancel()

	readings, err := queryClient().List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tINDEX\tCHANNEL\tVALUE")
	for _, r := range readings {
		value := formatValue(r.Category, r.Value)
		if r.Error != "" {
			value = "error: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Category, r.Index, r.Channel, value)
	}
	return w.Flush()
}

func formatValue(category string, value int64) string {
	switch category {
	case "fan":
		return fmt.Sprintf("%d rpm", value)
	case "temp":
		return fmt.Sprintf("%.3f °C", float64(value)/1000)
	default:
		return fmt.Sprint(value)
	}
}

type channelArgs struct {
	Category string `positional-arg-name:"category" description:"fan, pwm or temp"`
	Index    int    `positional-arg-name:"index"`
}

type readCommand struct {
	Args channelArgs `positional-args:"yes" required:"yes"`
}

func (c *readCommand) Execute(_ []string) error {
	ctx, cancel := clientContext()
	defer cancel()

	value, err := queryClient().Read(ctx, c.Args.Category, c.Args.Index)
	if err != nil {
		return err
	}
	fmt.Println(formatValue(c.Args.Category, value))
	return nil
}

type writeCommand struct {
	Args struct {
		Index int   `positional-arg-name:"index"`
		PWM   int64 `positional-arg-name:"pwm" description:"0-255"`
	} `positional-args:"yes" required:"yes"`
}

func (c *writeCommand) Execute(_ []string) error {
	ctx, cancel := clientContext()
	defer cancel()

	return queryClient().Write(ctx, "pwm", c.Args.Index, c.Args.PWM)
}

