package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/service"
	"github.com/ivlev/scriptvideo/internal/system"
)

type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string

	once   sync.Once
	config config.Config
	logger *slog.Logger
	err    error
}

func (c *commandContext) ensure() (config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configPath))
		if err != nil {
			c.err = err
			return
		}
		if c.logLevel != "" {
			cfg.Logging.Level = c.logLevel
		}
		if c.logFormat != "" {
			cfg.Logging.Format = c.logFormat
		}
		cfg.BuildVersion = buildVersion

		logger, err := logging.NewFromConfig(cfg.Logging)
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.logger, c.err
}

func (c *commandContext) newService(cfg config.Config, logger *slog.Logger) *service.Service {
	runner := engine.NewRunner(logger)
	return service.New(runner, service.Options{
		OutputDir:  cfg.Paths.OutputDir,
		FFmpegPath: cfg.Encoder.FFmpegPath,
		TempDir:    cfg.Paths.TempDir,
		Prober:     system.Prober{Binary: cfg.Encoder.FFprobePath},
	}, logger)
}
