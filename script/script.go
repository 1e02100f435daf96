// Package script runs command line programs with environment configuration,
// structured logging, optional OpenTelemetry export, signal handling and
// exit code management.
package script

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/amp-labs/statechart/config"
	"github.com/amp-labs/statechart/logger"
	"github.com/amp-labs/statechart/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Option is a function that configures a Script.
type Option func(script *Script)

// Exit returns an error that will cause the script to exit with the given code.
// Use this to exit with a specific code without logging an error.
func Exit(code int) error {
	return &exitError{
		code: code,
	}
}

// ExitWithError returns an error that will cause the script to exit with code 1
// and log the provided error.
func ExitWithError(err error) error {
	return &exitError{
		err:  err,
		code: 1,
	}
}

// ExitWithErrorMessage returns an error that will cause the script to exit with code 1
// and log a formatted error message.
func ExitWithErrorMessage(msg string, args ...any) error {
	return &exitError{
		err:  fmt.Errorf(msg, args...), //nolint:err113
		code: 1,
	}
}

// exitError is an error type that carries an exit code for script termination.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	msg := "exit " + strconv.FormatInt(int64(e.code), 10)

	if e.err != nil {
		return msg + ": " + e.err.Error()
	}

	return msg
}

func (e *exitError) Unwrap() error {
	return e.err
}

// LogLevel overrides the minimum log level from the environment.
func LogLevel(lvl slog.Level) Option {
	return func(script *Script) {
		script.configure = append(script.configure, func(cfg *config.Config) {
			cfg.Log.Level = lvl
		})
	}
}

// LogOutput sends log output to writer instead of the configured destination.
func LogOutput(writer io.Writer) Option {
	return func(script *Script) {
		script.loggerOpts = append(script.loggerOpts, logger.WithOutput(writer))
	}
}

// EnableFlagParse controls whether flag.Parse() is called before running the script.
// Defaults to true.
func EnableFlagParse(enabled bool) Option {
	return func(script *Script) {
		script.flagParseEnable = enabled
	}
}

// WithEnv reads the configuration from vars instead of the process environment.
func WithEnv(vars map[string]string) Option {
	return func(script *Script) {
		script.env = vars
	}
}

// Script represents a runnable program with configured logging and signal handling.
type Script struct {
	name            string
	flagParseEnable bool
	env             map[string]string
	configure       []func(*config.Config)
	loggerOpts      []logger.Option
}

// New creates a new Script with the given name and options.
// By default, flag parsing is enabled.
func New(scriptName string, opts ...Option) *Script {
	script := &Script{
		name:            scriptName,
		flagParseEnable: true,
	}

	for _, opt := range opts {
		opt(script)
	}

	return script
}

// Run executes the script with the provided function, handling signal interrupts
// and exit codes. The context passed to f is canceled on SIGINT or SIGTERM.
// This function calls os.Exit and does not return.
func (r *Script) Run(f func(ctx context.Context, cfg config.Config) error) {
	os.Exit(r.run(f))
}

// run executes the callback and returns an exit code. It parses the
// configuration, configures logging and telemetry, handles signals and
// processes exitErrors.
func (r *Script) run(callback func(ctx context.Context, cfg config.Config) error) int {
	if r.flagParseEnable {
		flag.Parse()
	}

	cfg, err := r.config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", r.name, err)

		return 1
	}

	// Catch Ctrl+C and handle it gracefully by shutting down the context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// In the case of abort it's possible to call stop more than once.
	stopOnce := sync.Once{}
	cancel := func() {
		stopOnce.Do(stop)
	}

	defer cancel()

	loggerOpts := r.loggerOpts

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName == "" {
			cfg.Telemetry.ServiceName = r.name
		}

		handler, err := telemetry.Initialize(ctx, cfg.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.name, err)

			return 1
		}

		defer shutdownTelemetry()

		loggerOpts = append([]logger.Option{logger.WithHandler(handler)}, loggerOpts...)
	}

	if _, err := logger.ConfigureFromEnv(r.name, cfg.Log, loggerOpts...); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", r.name, err)

		return 1
	}

	log := logger.Get(ctx)

	if callback == nil {
		log.Error("callback is nil")

		return 1
	}

	err = callback(ctx, cfg)
	if err == nil {
		return 0
	}

	var exitErr *exitError

	if errors.As(err, &exitErr) {
		if exitErr.code != 0 {
			log.Error("error running script", "error", err)
		}

		return exitErr.code
	}

	log.Error("error running script", "error", err)

	return 1
}

func (r *Script) config() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)

	if r.env != nil {
		cfg, err = config.ParseEnv(r.env)
	} else {
		cfg, err = config.Parse()
	}

	if err != nil {
		return config.Config{}, err
	}

	for _, f := range r.configure {
		f(&cfg)
	}

	return cfg, nil
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := telemetry.Shutdown(ctx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}
}
