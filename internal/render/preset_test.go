package render

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPresetArgs(t *testing.T) {
	if got := (Preset{Code: "m"}).Args(); len(got) != 1 || got[0] != "-qm" {
		t.Fatalf("derived flag = %v, want [-qm]", got)
	}
	if got := (Preset{Code: "m", Flag: "--quality=m"}).Args(); got[0] != "--quality=m" {
		t.Fatalf("explicit flag = %v", got)
	}
}

func TestDefaultPresets(t *testing.T) {
	lib := DefaultPresets()
	want := map[string]string{"l": "480p15", "m": "720p30", "h": "1080p60", "k": "2160p60"}
	for code, dir := range want {
		preset, ok := lib.Get(code)
		if !ok {
			t.Fatalf("missing preset %q", code)
		}
		if preset.Directory != dir || preset.Flag != "-q"+code || preset.Code != code {
			t.Fatalf("preset %q = %+v", code, preset)
		}
	}
	if codes := lib.Codes(); len(codes) != 4 || codes[0] != "h" {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestResolveUnknownCode(t *testing.T) {
	preset := DefaultPresets().Resolve("z")
	if preset.Directory != FallbackDirectory || preset.Flag != "-qz" {
		t.Fatalf("unexpected fallback preset %+v", preset)
	}
	var nilLib *PresetLibrary
	if got := nilLib.Resolve("l"); got.Directory != FallbackDirectory {
		t.Fatalf("nil library should resolve to fallback, got %+v", got)
	}
}

func TestLoadPresetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	contents := []byte(`presets:
  h:
    directory: 1080p30
  p:
    flag: -qp
    directory: 1440p60
`)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write presets: %v", err)
	}
	lib, err := LoadPresetFile(path)
	if err != nil {
		t.Fatalf("LoadPresetFile: %v", err)
	}

	h, _ := lib.Get("h")
	if h.Directory != "1080p30" || h.Flag != "-qh" {
		t.Fatalf("override should keep the built-in flag, got %+v", h)
	}
	p, ok := lib.Get("p")
	if !ok || p.Directory != "1440p60" || p.Flag != "-qp" {
		t.Fatalf("custom preset = %+v ok=%v", p, ok)
	}
	if l, _ := lib.Get("l"); l.Directory != "480p15" {
		t.Fatalf("built-in preset lost: %+v", l)
	}
}

func TestLoadPresetFileErrors(t *testing.T) {
	if _, err := LoadPresetFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("presets: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPresetFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
