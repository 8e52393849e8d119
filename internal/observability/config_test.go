package observability

import (
	"testing"

	"github.com/pinksky/orderflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDevelopmentDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "Development", OTLPEndpoint: " collector:4317 "})

	assert.Equal(t, "orderflow", cfg.ServiceName)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigProductionKeepsExplicitSettings(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "orderflow-api",
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			Enabled:       true,
			LogLevel:      "WARN",
			OTLPProtocol:  "http/protobuf",
			SamplingRatio: 0.25,
		},
	})

	assert.Equal(t, "orderflow-api", cfg.ServiceName)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())

	bad := LoadConfig(config.Config{Environment: "production", Telemetry: config.TelemetryConfig{OTLPProtocol: "udp", SamplingRatio: 3}})
	assert.Equal(t, "grpc", bad.OtelExporterProtocol)
	assert.Equal(t, 0.1, bad.OtelSamplingRatio)
}
