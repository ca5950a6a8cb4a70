package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger. verbose forces debug.
func SetupLogging(cfg *Config, out io.Writer, verbose bool) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(out)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return nil
}

// OpenLogFile opens ~/.burrow/burrow.log for appending. The TUI sends
// process logs there so they don't draw over the screen.
func OpenLogFile() (*os.File, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "burrow.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
