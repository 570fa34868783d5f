package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"animgen/internal/config"
	"animgen/internal/observability"
	"animgen/internal/pipeline"
)

// cliFlags holds raw flag values; only flags the user set become overrides.
type cliFlags struct {
	prompt     string
	output     string
	scene      string
	quality    string
	preview    bool
	silent     bool
	configPath string
	model      string
	renderer   string
	mediaDir   string
	logLevel   string
	verbose    bool
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &cliFlags{}
	cmd := &cobra.Command{
		Use:   "animgen [prompt]",
		Short: "Generate a Manim animation from a natural-language prompt",
		Long: `animgen asks a language model to write a Manim Community scene for the
given prompt, saves the script, renders it with the manim CLI and reports
where the video was written.

The prompt comes from --prompt or, when that flag is absent, from the
positional arguments joined with spaces.`,
		Example: `  animgen --prompt "a blue circle morphing into a red square"
  animgen --quality h --preview "the Pythagorean theorem, visually"`,
		Version:       appVersion(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, flags, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	bindFlags(cmd.Flags(), flags)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, flags *cliFlags) {
	fs.SetNormalizeFunc(underscoreFlags)
	fs.StringVar(&flags.prompt, "prompt", "", "natural-language description of the animation")
	fs.StringVar(&flags.output, "output_script", config.DefaultScriptFilename, "file to write the generated script to")
	fs.StringVar(&flags.scene, "scene_name", config.DefaultSceneName, "name of the Scene class to generate and render")
	fs.StringVarP(&flags.quality, "quality", "q", string(config.QualityLow), "render quality: l (480p15), m (720p30), h (1080p60), k (2160p60)")
	fs.BoolVarP(&flags.preview, "preview", "p", false, "open the video when rendering finishes")
	fs.BoolVar(&flags.silent, "silent", false, "hide the renderer progress bar")
	fs.StringVar(&flags.configPath, "config", "", "config file (default ~/.animgen/config.yaml)")
	fs.StringVar(&flags.model, "model", "", "model used to write the script")
	fs.StringVar(&flags.renderer, "renderer", "", "renderer executable (default manim)")
	fs.StringVar(&flags.mediaDir, "media_dir", "", "directory the renderer writes videos under (default media)")
	fs.StringVar(&flags.logLevel, "log_level", "", "log level: debug, info, warn, error")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "shorthand for --log-level debug")
}

// underscoreFlags accepts --media-dir and --media_dir as the same flag.
func underscoreFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

// overrides converts the flags the user actually set into loader overrides.
func (f *cliFlags) overrides(fs *pflag.FlagSet, args []string) (config.Overrides, error) {
	var o config.Overrides
	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}
	setString := func(name, value string) *string {
		if !changed(name) {
			return nil
		}
		v := value
		return &v
	}
	setBool := func(name string, value bool) *bool {
		if !changed(name) {
			return nil
		}
		v := value
		return &v
	}

	prompt := strings.TrimSpace(f.prompt)
	if !changed("prompt") {
		prompt = strings.TrimSpace(strings.Join(args, " "))
	} else if len(args) > 0 {
		return o, fmt.Errorf("unexpected arguments %q: the prompt was already given with --prompt", args)
	}
	o.Prompt = &prompt

	if changed("quality") {
		q, err := config.ParseQuality(f.quality)
		if err != nil {
			return o, err
		}
		quality := string(q)
		o.Quality = &quality
	}
	o.ScriptFilename = setString("output_script", f.output)
	o.SceneName = setString("scene_name", f.scene)
	o.Preview = setBool("preview", f.preview)
	o.Silent = setBool("silent", f.silent)
	o.Model = setString("model", f.model)
	o.Renderer = setString("renderer", f.renderer)
	o.MediaDir = setString("media_dir", f.mediaDir)
	o.LogLevel = setString("log_level", f.logLevel)
	if o.LogLevel == nil && f.verbose {
		level := "debug"
		o.LogLevel = &level
	}
	return o, nil
}

func execute(cmd *cobra.Command, flags *cliFlags, args []string, stdout, stderr io.Writer) error {
	overrides, err := flags.overrides(cmd.Flags(), args)
	if err != nil {
		return usageError(err)
	}

	cfg, meta, err := config.Load(
		config.WithConfigPath(flags.configPath),
		config.WithOverrides(overrides),
	)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return usageError(err)
		}
		return err
	}
	if cfg.Prompt == "" {
		return usageError(errors.New("a prompt is required: pass --prompt or the prompt text as arguments"))
	}
	cfg.Observability.Tracing.ServiceVersion = appVersion()

	container, err := buildContainer(cfg, stdout, stderr)
	if err != nil {
		return err
	}
	ctx := observability.ContextWithRunID(cmd.Context(), uuid.NewString())
	defer func() {
		if err := container.Cleanup(ctx); err != nil {
			fmt.Fprintf(stderr, "Cleanup error: %v\n", err)
		}
	}()

	container.Logger.WithContext(ctx).Debug("configuration loaded",
		"config_file", meta.ConfigFile(),
		"loaded_at", meta.LoadedAt(),
		"sources", meta.Sources(),
		"api_key_source", meta.Source("llm.api_key"),
		"model", cfg.LLM.Model,
		"quality", cfg.Quality.String(),
		"api_key", observability.SanitizeAPIKey(cfg.LLM.APIKey),
	)

	container.Pipeline.Run(ctx, pipeline.Options{
		Prompt:     cfg.Prompt,
		ScriptPath: cfg.ScriptFilename,
		Scene:      cfg.SceneName,
		Quality:    cfg.Quality.String(),
		Preview:    cfg.Preview,
		Silent:     cfg.Silent,
	})
	return nil
}
