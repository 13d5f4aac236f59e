// Package app wires the pipeline stages together: annotation parsing, URL
// verification, dataset assembly, model config generation, and local
// materialization, in that order.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/yolosetgo/internal/fetch"
	"github.com/vk/yolosetgo/internal/hclconf"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	dataset hclconf.Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the dataset
// configuration already loaded.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	datasetCfg, err := hclconf.Load(appConfig.ConfigPath)
	if err != nil {
		// A failure to load config is a fatal startup error.
		panic(fmt.Errorf("failed to load dataset configuration: %w", err))
	}
	logger.Debug("Dataset configuration loaded.", "path", appConfig.ConfigPath)

	return &App{
		outW:    outW,
		logger:  logger,
		config:  appConfig,
		dataset: datasetCfg,
	}
}

// networkOptions resolves the effective network tuning: the config file's
// network block with the CLI worker override applied.
func (a *App) networkOptions() fetch.Options {
	net := a.dataset.Network
	opts := fetch.Options{
		Workers: net.Workers,
		Timeout: net.Timeout,
		Retries: net.Retries,
		Backoff: net.Backoff,
	}
	if a.config.WorkerOverride > 0 {
		opts.Workers = a.config.WorkerOverride
	}
	return opts
}
