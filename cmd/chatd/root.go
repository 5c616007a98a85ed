package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatcore/internal/config"
)

// globalOpts are the persistent flags shared by every subcommand.
type globalOpts struct {
	configPath string
	logLevel   string
	lib        string
	modelsDir  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Local LLM chat sessions over HTTP or an interactive prompt",
		Long:          "chatd keeps one conversation with a local GGUF model.\n\n" + config.EnvHelp(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults CHATD_LOG_LEVEL or info)")
	pf.StringVar(&opts.lib, "lib", "", "Directory holding the llama.cpp shared libraries (defaults CHATD_LIB)")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Directory scanned for *.gguf model files")

	root.AddCommand(newServeCmd(opts), newChatCmd(opts), newModelsCmd(opts), newDownloadCmd(opts))
	return root
}

// load resolves file, environment and flags, in that order.
func (o *globalOpts) load() (config.Config, error) {
	cfg, err := config.Resolve(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.lib != "" {
		cfg.LibPath = o.lib
	}
	if o.modelsDir != "" {
		cfg.ModelsDir = o.modelsDir
	}
	return cfg, cfg.Validate()
}

// newLogger writes JSON, or human-readable lines when console is set.
func newLogger(level string, console bool, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
