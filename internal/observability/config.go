package observability

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration. Metrics and
// tracing stay off until configured.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:     "otlp",
			OTLPEndpoint: "localhost:4318",
			SampleRate:   1.0,
			ServiceName:  "animgen",
		},
	}
}
