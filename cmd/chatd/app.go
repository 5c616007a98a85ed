package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/backend"
	"chatcore/internal/common/fsutil"
	"chatcore/internal/config"
	"chatcore/internal/folders"
	"chatcore/internal/manager"
	"chatcore/internal/registry"
	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/internal/transcript"
)

// settingsSection groups the chat settings inside the settings file.
const settingsSection = "chat"

// app owns the long-lived collaborators shared by serve and chat.
type app struct {
	cfg        config.Config
	paths      folders.Paths
	log        zerolog.Logger
	reg        *registry.Registry
	store      *settings.Store
	transcript *transcript.Store
	mgr        *manager.Manager
}

func resolvePaths(cfg config.Config) (folders.Paths, error) {
	if cfg.DataDir == "" {
		return folders.Resolve()
	}
	root, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return folders.Paths{}, err
	}
	return folders.UnderRoot(root), nil
}

// modelsDir is the configured directory or the per-user default.
func modelsDir(cfg config.Config, paths folders.Paths) string {
	if cfg.ModelsDir != "" {
		return cfg.ModelsDir
	}
	return paths.Models
}

func sessionConfig(s config.Session) session.Config {
	return session.Config{
		Capacity:  s.ContextSize,
		BatchSize: s.BatchSize,
		Threads:   s.Threads,
		MaxTokens: s.MaxTokens,
		Sampling: session.Sampling{
			TopK:        s.TopK,
			TopP:        float32(s.TopP),
			Temperature: float32(s.Temperature),
			Seed:        s.Seed,
		},
		KeepRatio:    s.KeepRatio,
		MinKeep:      s.MinKeep,
		PromptFormat: s.PromptFormat,
	}
}

func openApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	paths, err := resolvePaths(cfg)
	if err != nil {
		return nil, err
	}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	reg, err := registry.New(modelsDir(cfg, paths))
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(paths.SettingsFile())
	if err != nil {
		return nil, err
	}
	tr, err := transcript.Open(ctx, paths.TranscriptDB())
	if err != nil {
		return nil, err
	}

	lib := cfg.LibPath
	if lib == "" {
		lib = paths.Bin
	}
	if err := backend.Init(lib); err != nil {
		// The stub loader keeps failing loads with the same error, which the
		// HTTP layer reports as 503.
		log.Warn().Err(err).Str("lib", lib).Msg("llama runtime unavailable")
	}

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Loader:        backend.NewLoader(),
		Directory:     reg,
		Session:       sessionConfig(cfg.Session),
		Settings:      store.Section(settingsSection),
		Transcript:    tr,
		Publisher:     manager.LogPublisher{Log: log.With().Str("component", "events").Logger()},
		Logger:        log.With().Str("component", "manager").Logger(),
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
	})
	return &app{cfg: cfg, paths: paths, log: log, reg: reg, store: store, transcript: tr, mgr: mgr}, nil
}

// startupModel is the configured default, else the last model used.
func (a *app) startupModel() string {
	if a.cfg.DefaultModel != "" {
		return a.cfg.DefaultModel
	}
	return a.mgr.LastModel()
}

// restore loads the startup model, if any.
func (a *app) restore(ctx context.Context) error {
	id := a.startupModel()
	if id == "" {
		return nil
	}
	if !a.reg.Exists(id) {
		return fmt.Errorf("load %s: not in %s", id, a.reg.Dir())
	}
	if err := a.mgr.Switch(ctx, id); err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}
	return nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.mgr.Close(ctx), a.transcript.Close())
}
