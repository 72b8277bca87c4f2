// Package logger builds the zerolog logger of the planner.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"shared-planner/internal/config"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
}

// New returns a logger for env writing to w. Local runs get the console
// writer and trace level, dev runs debug and prod runs info as JSON.
func New(env string, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	switch env {
	case config.EnvDev:
		level = zerolog.DebugLevel
	case config.EnvProd:
	case config.EnvLocal:
		level = zerolog.TraceLevel
		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.TimeFormat = time.DateTime
		consoleWriter.Out = w
		w = consoleWriter
	default:
		return zerolog.Nop(), fmt.Errorf("unknown env: %s", env)
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger(), nil
}
