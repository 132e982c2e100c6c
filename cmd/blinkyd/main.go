package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"blinky/internal/app"
	"blinky/internal/config"
	"blinky/internal/logging"
)

func main() {
	flags := pflag.NewFlagSet("blinkyd", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "Path to configuration file. Defaults to ./config.yaml, ~/.config/blinky/config.yaml, /etc/blinky/config.yaml")
	flags.String("db", "", "Path to the SQLite database")
	flags.String("socket", "", "Path to the command socket")
	flags.String("log", "", "Path to log file (defaults to stderr)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	detachFlag := flags.BoolP("detach", "d", false, "Run in the background and write a pid file")
	_ = flags.Parse(os.Args[1:])

	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	loader := config.NewLoader(*configPath, boot)
	if err := loader.BindFlags(flags); err != nil {
		boot.Fatal().Err(err).Msg("failed to bind flags")
	}
	cfg, err := loader.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *detachFlag {
		parent, release, err := detach(cfg.PidFile, cfg.Log.File)
		if err != nil {
			boot.Fatal().Err(err).Msg("failed to detach")
		}
		if parent {
			fmt.Printf("blinkyd started in background (pid file %s)\n", cfg.PidFile)
			return
		}
		defer func() {
			if err := release(); err != nil {
				boot.Warn().Err(err).Msg("failed to release pid file")
			}
		}()
	}

	log, logFile, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		boot.Error().Err(err).Msg("failed to set up file logging, logging to stderr instead")
		log, _, _ = logging.New(logging.Config{Level: cfg.Log.Level})
	}
	if logFile != nil {
		defer logFile.Close()
	}

	loader.Watch(func(c *config.Config) {
		lvl := logging.SetLevel(c.Log.Level)
		log.Info().Str("level", lvl.String()).Msg("log level applied")
	})

	application, err := app.NewApp(cfg, log, app.Options{HandleSignals: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create application")
	}

	start := time.Now()
	if err := application.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("application exited with error")
		os.Exit(1)
	}
	log.Info().Dur("uptime", time.Since(start)).Msg("blinkyd finished")
}
