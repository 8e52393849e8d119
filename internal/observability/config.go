package observability

import (
	"strings"

	"github.com/pinksky/orderflow/internal/config"
)

const defaultServiceName = "orderflow"

// Config is the telemetry view of the service configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig fills the gaps per environment: development logs to the console
// and samples every trace, everything else logs JSON and samples a tenth.
func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	c := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(t.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(t.LogFormat)),
		OtelEnabled:          t.Enabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(t.OTLPProtocol)),
		OtelSamplingRatio:    t.SamplingRatio,
	}

	dev := isDevEnv(c.Environment)
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		c.LogFormat = "json"
		if dev {
			c.LogFormat = "console"
		}
	}
	switch c.OtelExporterProtocol {
	case "grpc", "http", "http/protobuf":
	default:
		c.OtelExporterProtocol = "grpc"
	}
	if c.OtelSamplingRatio <= 0 || c.OtelSamplingRatio > 1 {
		c.OtelSamplingRatio = 0.1
		if dev {
			c.OtelSamplingRatio = 1
		}
	}
	return c
}

// Debug turns on gin debug mode and error stacks.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
