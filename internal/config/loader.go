package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"animgen/internal/observability"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "ANIMGEN"

// EnvConfigPath names the variable that points at an alternate config file.
const EnvConfigPath = "ANIMGEN_CONFIG"

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// envAliases lists extra variables consulted after the ANIMGEN_ name.
var envAliases = map[string][]string{
	"llm.api_key": {"ANTHROPIC_API_KEY"},
}

func defaults() map[string]any {
	obs := observability.DefaultConfig()
	return map[string]any{
		"script_filename":                       DefaultScriptFilename,
		"scene_name":                            DefaultSceneName,
		"quality":                               string(QualityLow),
		"preview":                               false,
		"silent":                                false,
		"llm.provider":                          DefaultLLMProvider,
		"llm.model":                             DefaultLLMModel,
		"llm.api_key":                           "",
		"llm.base_url":                          "",
		"llm.max_tokens":                        DefaultMaxTokens,
		"llm.timeout_seconds":                   0,
		"render.binary":                         DefaultRendererBinary,
		"render.media_dir":                      DefaultMediaDir,
		"render.presets_file":                   "",
		"observability.logging.level":           obs.Logging.Level,
		"observability.logging.format":          obs.Logging.Format,
		"observability.metrics.enabled":         obs.Metrics.Enabled,
		"observability.metrics.textfile":        obs.Metrics.Textfile,
		"observability.tracing.enabled":         obs.Tracing.Enabled,
		"observability.tracing.exporter":        obs.Tracing.Exporter,
		"observability.tracing.otlp_endpoint":   obs.Tracing.OTLPEndpoint,
		"observability.tracing.zipkin_endpoint": obs.Tracing.ZipkinEndpoint,
		"observability.tracing.sample_rate":     obs.Tracing.SampleRate,
		"observability.tracing.service_name":    obs.Tracing.ServiceName,
		"observability.tracing.service_version": obs.Tracing.ServiceVersion,
	}
}

// EnvName returns the environment variable consulted for a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load constructs the runtime configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.envLookup == nil {
		options.envLookup = DefaultEnvLookup
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	v := viper.New()
	keys := defaults()
	for key, value := range keys {
		v.SetDefault(key, value)
	}

	if err := applyFile(v, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	applyEnv(v, &meta, options.envLookup, keys)
	applyOverrides(v, &meta, options.overrides)

	var cfg RuntimeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RuntimeConfig{}, Metadata{}, fmt.Errorf("decode configuration: %w", err)
	}
	if options.overrides.Prompt != nil {
		cfg.Prompt = strings.TrimSpace(*options.overrides.Prompt)
		meta.sources["prompt"] = SourceOverride
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func applyFile(v *viper.Viper, meta *Metadata, options loadOptions) error {
	path, explicit := resolveConfigPath(options)
	if path == "" {
		return nil
	}
	data, err := options.readFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	meta.configFile = path
	for _, key := range v.AllKeys() {
		if v.InConfig(key) {
			meta.sources[key] = SourceFile
		}
	}
	return nil
}

func resolveConfigPath(options loadOptions) (string, bool) {
	if path := strings.TrimSpace(options.configPath); path != "" {
		return expandHome(path, options.homeDir), true
	}
	if path, ok := options.envLookup(EnvConfigPath); ok && strings.TrimSpace(path) != "" {
		return expandHome(strings.TrimSpace(path), options.homeDir), true
	}
	if options.homeDir == nil {
		return "", false
	}
	home, err := options.homeDir()
	if err != nil || home == "" {
		return "", false
	}
	return filepath.Join(home, ".animgen", "config.yaml"), false
}

func expandHome(path string, homeDir func() (string, error)) string {
	if homeDir == nil || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func applyEnv(v *viper.Viper, meta *Metadata, lookup EnvLookup, keys map[string]any) {
	for key := range keys {
		names := append([]string{EnvName(key)}, envAliases[key]...)
		for _, name := range names {
			value, ok := lookup(name)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			v.Set(key, strings.TrimSpace(value))
			meta.sources[key] = SourceEnv
			break
		}
	}
}

func applyOverrides(v *viper.Viper, meta *Metadata, overrides Overrides) {
	setString := func(key string, value *string) {
		if value == nil {
			return
		}
		v.Set(key, *value)
		meta.sources[key] = SourceOverride
	}
	setBool := func(key string, value *bool) {
		if value == nil {
			return
		}
		v.Set(key, *value)
		meta.sources[key] = SourceOverride
	}

	setString("script_filename", overrides.ScriptFilename)
	setString("scene_name", overrides.SceneName)
	setString("quality", overrides.Quality)
	setBool("preview", overrides.Preview)
	setBool("silent", overrides.Silent)
	setString("llm.model", overrides.Model)
	setString("llm.api_key", overrides.APIKey)
	setString("render.binary", overrides.Renderer)
	setString("render.media_dir", overrides.MediaDir)
	setString("observability.logging.level", overrides.LogLevel)
}

func normalize(cfg *RuntimeConfig) {
	cfg.ScriptFilename = strings.TrimSpace(cfg.ScriptFilename)
	cfg.SceneName = strings.TrimSpace(cfg.SceneName)
	cfg.Quality = Quality(strings.ToLower(strings.TrimSpace(string(cfg.Quality))))
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.Model = strings.TrimSpace(cfg.LLM.Model)
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.Render.Binary = strings.TrimSpace(cfg.Render.Binary)
	cfg.Render.MediaDir = strings.TrimSpace(cfg.Render.MediaDir)
	if cfg.Render.Binary == "" {
		cfg.Render.Binary = DefaultRendererBinary
	}
	if cfg.Render.MediaDir == "" {
		cfg.Render.MediaDir = DefaultMediaDir
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = DefaultLLMProvider
	}
}

// Validate checks the settings every run depends on. The prompt is not
// checked here; callers decide whether an empty prompt is a usage error.
func (c RuntimeConfig) Validate() error {
	if !c.Quality.Valid() {
		return fmt.Errorf("%w: quality %q must be one of l, m, h, k", ErrInvalidConfig, c.Quality)
	}
	if c.SceneName == "" {
		return fmt.Errorf("%w: scene name is empty", ErrInvalidConfig)
	}
	if c.ScriptFilename == "" {
		return fmt.Errorf("%w: output script filename is empty", ErrInvalidConfig)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("%w: llm.max_tokens must be positive, got %d", ErrInvalidConfig, c.LLM.MaxTokens)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: llm.timeout_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}
