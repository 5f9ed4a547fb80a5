package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bikemon/pkg/config"
)

// configureLogger creates a logger with the level taken from --log-level, then --verbose,
// then the log_level key of a config file that exists on disk. Without any of them the
// logger is effectively silent.
func configureLogger(cmd *cobra.Command, fileLevel string) (*logrus.Logger, error) {
	// Default to panic level (essentially silent for normal operations)
	logLevel := logrus.PanicLevel

	levelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch {
	case levelStr != "":
		lvl, err := config.ParseLogLevel(levelStr)
		if err != nil {
			return nil, err
		}
		logLevel = lvl
	case verbose:
		logLevel = logrus.DebugLevel
	case fileLevel != "":
		// a bad file level is reported by config validation, not here
		if lvl, err := config.ParseLogLevel(fileLevel); err == nil {
			logLevel = lvl
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
