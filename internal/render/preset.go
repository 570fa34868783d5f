package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackDirectory is the output directory assumed for unknown quality codes.
const FallbackDirectory = "480p15"

// Preset describes how a quality tier is requested from the renderer and
// where the renderer writes its output.
type Preset struct {
	Code      string
	Flag      string
	Directory string
}

// Args returns the renderer arguments encoded by the preset.
func (p Preset) Args() []string {
	flag := p.Flag
	if flag == "" {
		flag = "-q" + p.Code
	}
	return []string{flag}
}

// PresetLibrary stores presets keyed by quality code.
type PresetLibrary struct {
	presets map[string]Preset
}

// NewPresetLibrary constructs a library from a map of presets.
func NewPresetLibrary(m map[string]Preset) *PresetLibrary {
	cp := make(map[string]Preset, len(m))
	for k, v := range m {
		v.Code = k
		cp[k] = v
	}
	return &PresetLibrary{presets: cp}
}

// DefaultPresets returns the renderer's standard quality tiers.
func DefaultPresets() *PresetLibrary {
	return NewPresetLibrary(map[string]Preset{
		"l": {Flag: "-ql", Directory: "480p15"},
		"m": {Flag: "-qm", Directory: "720p30"},
		"h": {Flag: "-qh", Directory: "1080p60"},
		"k": {Flag: "-qk", Directory: "2160p60"},
	})
}

// Get retrieves a preset by code.
func (l *PresetLibrary) Get(code string) (Preset, bool) {
	if l == nil {
		return Preset{}, false
	}
	preset, ok := l.presets[code]
	return preset, ok
}

// Resolve returns the preset for code. Unknown codes still pass -q<code>
// to the renderer but predict output under FallbackDirectory.
func (l *PresetLibrary) Resolve(code string) Preset {
	if preset, ok := l.Get(code); ok {
		return preset
	}
	return Preset{Code: code, Flag: "-q" + code, Directory: FallbackDirectory}
}

// Codes lists the known quality codes in sorted order.
func (l *PresetLibrary) Codes() []string {
	if l == nil {
		return nil
	}
	codes := make([]string, 0, len(l.presets))
	for code := range l.presets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Merge returns a new library with other's presets layered over l's.
func (l *PresetLibrary) Merge(other *PresetLibrary) *PresetLibrary {
	merged := map[string]Preset{}
	if l != nil {
		for k, v := range l.presets {
			merged[k] = v
		}
	}
	if other != nil {
		for k, v := range other.presets {
			base := merged[k]
			if v.Flag == "" {
				v.Flag = base.Flag
			}
			if v.Directory == "" {
				v.Directory = base.Directory
			}
			merged[k] = v
		}
	}
	return NewPresetLibrary(merged)
}

// LoadPresetFile reads presets from a YAML file on disk and layers them
// over DefaultPresets.
func LoadPresetFile(path string) (*PresetLibrary, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load preset file: %w", err)
	}
	type rawPreset struct {
		Flag      string `yaml:"flag"`
		Directory string `yaml:"directory"`
	}
	var payload struct {
		Presets map[string]rawPreset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	presets := make(map[string]Preset, len(payload.Presets))
	for code, rp := range payload.Presets {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, fmt.Errorf("parse preset file: empty quality code")
		}
		presets[code] = Preset{
			Code:      code,
			Flag:      strings.TrimSpace(rp.Flag),
			Directory: strings.TrimSpace(rp.Directory),
		}
	}
	return DefaultPresets().Merge(NewPresetLibrary(presets)), nil
}
