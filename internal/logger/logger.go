package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// New constructs the service logger. Development gets a console writer,
// everything else emits JSON lines.
func New(env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if env == "development" {
			lvl = zerolog.DebugLevel
		}
	}

	log := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if env == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// AsynqLevel maps a textual level onto asynq's log levels.
func AsynqLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// Asynq adapts zerolog to asynq.Logger.
type Asynq struct {
	log zerolog.Logger
}

func NewAsynq(log zerolog.Logger) *Asynq {
	return &Asynq{log: Component(log, "asynq")}
}

func (a *Asynq) Debug(args ...interface{}) { a.log.Debug().Msg(fmt.Sprint(args...)) }
func (a *Asynq) Info(args ...interface{})  { a.log.Info().Msg(fmt.Sprint(args...)) }
func (a *Asynq) Warn(args ...interface{})  { a.log.Warn().Msg(fmt.Sprint(args...)) }
func (a *Asynq) Error(args ...interface{}) { a.log.Error().Msg(fmt.Sprint(args...)) }

// Fatal logs at fatal level; zerolog exits the process.
func (a *Asynq) Fatal(args ...interface{}) { a.log.Fatal().Msg(fmt.Sprint(args...)) }
