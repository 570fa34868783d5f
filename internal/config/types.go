package config

import (
	"fmt"
	"strings"
	"time"

	"animgen/internal/observability"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultScriptFilename = "generated_manim_scene.py"
	DefaultSceneName      = "PromptAnimationScene"
	DefaultLLMProvider    = "anthropic"
	DefaultLLMModel       = "claude-3-7-sonnet-latest"
	DefaultMaxTokens      = 16000
	DefaultRendererBinary = "manim"
	DefaultMediaDir       = "media"
)

// Quality is a renderer quality tier code.
type Quality string

const (
	QualityLow    Quality = "l"
	QualityMedium Quality = "m"
	QualityHigh   Quality = "h"
	Quality4K     Quality = "k"
)

// Qualities lists the accepted tiers in ascending order.
var Qualities = []Quality{QualityLow, QualityMedium, QualityHigh, Quality4K}

// Valid reports whether q is one of the accepted tier codes.
func (q Quality) Valid() bool {
	for _, candidate := range Qualities {
		if q == candidate {
			return true
		}
	}
	return false
}

func (q Quality) String() string {
	return string(q)
}

// ParseQuality validates a tier code as typed by the operator.
func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	if !q.Valid() {
		return "", fmt.Errorf("invalid quality %q: must be one of l, m, h, k", raw)
	}
	return q, nil
}

// LLMConfig holds the script-authoring model settings.
type LLMConfig struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	Model          string `mapstructure:"model" yaml:"model"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens      int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// RenderConfig holds renderer process settings.
type RenderConfig struct {
	Binary      string `mapstructure:"binary" yaml:"binary"`
	MediaDir    string `mapstructure:"media_dir" yaml:"media_dir"`
	PresetsFile string `mapstructure:"presets_file" yaml:"presets_file"`
}

// RuntimeConfig is the immutable configuration of one invocation.
type RuntimeConfig struct {
	Prompt         string               `mapstructure:"-" yaml:"-"`
	ScriptFilename string               `mapstructure:"script_filename" yaml:"script_filename"`
	SceneName      string               `mapstructure:"scene_name" yaml:"scene_name"`
	Quality        Quality              `mapstructure:"quality" yaml:"quality"`
	Preview        bool                 `mapstructure:"preview" yaml:"preview"`
	Silent         bool                 `mapstructure:"silent" yaml:"silent"`
	LLM            LLMConfig            `mapstructure:"llm" yaml:"llm"`
	Render         RenderConfig         `mapstructure:"render" yaml:"render"`
	Observability  observability.Config `mapstructure:"observability" yaml:"observability"`
}

// Overrides carries caller-supplied values with the highest precedence.
// Nil fields leave the lower layers untouched.
type Overrides struct {
	Prompt         *string
	ScriptFilename *string
	SceneName      *string
	Quality        *string
	Preview        *bool
	Silent         *bool
	Model          *string
	APIKey         *string
	Renderer       *string
	MediaDir       *string
	LogLevel       *string
}

// Metadata records provenance for the loaded configuration.
type Metadata struct {
	sources    map[string]ValueSource
	configFile string
	loadedAt   time.Time
}

// Sources returns a copy of the provenance map keyed by config key.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		out[key] = value
	}
	return out
}

// Source reports where the value for key came from.
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// ConfigFile returns the file that was read, or "" when none was.
func (m Metadata) ConfigFile() string {
	return m.configFile
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}
