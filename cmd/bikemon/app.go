package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bikemon/internal/alert"
	"github.com/srg/bikemon/internal/devicefactory"
	"github.com/srg/bikemon/internal/session"
	"github.com/srg/bikemon/pkg/config"
)

// app carries what every subcommand needs: the effective configuration and a logger.
type app struct {
	cfg    *config.Config
	path   string
	logger *logrus.Logger
}

// loadApp reads --config (or the default path), applies --backend and builds the logger.
func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg      *config.Config
		err      error
		fromFile = true
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		path = config.DefaultConfigPath()
		cfg, err = config.Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			cfg, err, fromFile = config.DefaultConfig(), nil, false
		}
	}
	if err != nil {
		return nil, err
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Bluetooth.Backend = backend
	}

	fileLevel := ""
	if fromFile {
		fileLevel = cfg.LogLevel
	}
	logger, err := configureLogger(cmd, fileLevel)
	if err != nil {
		return nil, err
	}

	logger.WithField("path", path).WithField("from_file", fromFile).Debug("Configuration loaded")
	return &app{cfg: cfg, path: path, logger: logger}, nil
}

// newSession validates the configuration and wires a session to the selected backend.
func (a *app) newSession(opts session.Options, sink alert.Sink) (*session.Session, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	transport, err := devicefactory.New(a.cfg.Bluetooth.Backend, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bluetooth transport: %w", err)
	}
	a.logger.WithField("backend", a.cfg.Bluetooth.Backend).Debug("Bluetooth transport created")

	return session.New(transport, opts, sink, a.logger), nil
}

func stdoutIsFile(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.OutOrStdout().(*os.File)
	return f, ok
}
