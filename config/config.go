// Package config reads the interpreter's runtime configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/statechart/logger"
	"github.com/caarlos0/env/v11"
)

// Datamodel kinds.
const (
	DatamodelSimple = "simple"
	DatamodelLua    = "lua"
)

var (
	// ErrUnknownDatamodel is returned for an unsupported SCXML_DATAMODEL value.
	ErrUnknownDatamodel = errors.New("unknown datamodel")
	// ErrInvalidWorkers is returned when the dispatch pool size is not positive.
	ErrInvalidWorkers = errors.New("dispatch workers must be positive")
)

// Config is the full environment configuration.
type Config struct {
	Log       logger.EnvConfig
	Telemetry Telemetry

	// Datamodel is used when a document does not name one.
	Datamodel string `env:"SCXML_DATAMODEL" envDefault:"simple"`
	// DispatchWorkers bounds the number of concurrent HTTP sends.
	DispatchWorkers int           `env:"SCXML_DISPATCH_WORKERS" envDefault:"8"`
	HTTPTimeout     time.Duration `env:"SCXML_HTTP_TIMEOUT"     envDefault:"10s"`
	// DNSRefresh is how often cached DNS entries for HTTP targets are refreshed.
	DNSRefresh time.Duration `env:"SCXML_DNS_REFRESH" envDefault:"5m"`
}

// Telemetry holds the OpenTelemetry exporter settings.
type Telemetry struct {
	Enabled        bool          `env:"OTEL_ENABLED"                      envDefault:"false"`
	ServiceName    string        `env:"OTEL_SERVICE_NAME"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION"              envDefault:"1.0.0"`
	Environment    string        `env:"OTEL_ENVIRONMENT"                  envDefault:"local"`
	TracesEndpoint string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	LogsEndpoint   string        `env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT"        envDefault:"5s"`
}

// Parse reads the configuration from the process environment.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// ParseEnv reads the configuration from the given variables instead of the
// process environment.
func ParseEnv(vars map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: vars})
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	switch c.Datamodel {
	case DatamodelSimple, DatamodelLua:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDatamodel, c.Datamodel)
	}

	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.DispatchWorkers)
	}

	return nil
}
