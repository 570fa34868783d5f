package main

import (
	"runtime/debug"
	"strings"
	"sync"

	"animgen/internal/config"
)

var (
	versionOnce   sync.Once
	cachedVersion string
)

// appVersion returns the best-effort version for the animgen binary:
// ANIMGEN_VERSION, then Go build information, then "dev".
func appVersion() string {
	versionOnce.Do(func() {
		cachedVersion = detectVersion(config.DefaultEnvLookup)
	})
	return cachedVersion
}

func detectVersion(lookup config.EnvLookup) string {
	if v, ok := lookup("ANIMGEN_VERSION"); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
