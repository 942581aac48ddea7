// Package logging adapts zerolog to the engine's narrow tools.Logger
// surface. No package-level global logger is exposed — a caller builds
// one Logger and threads it through engine.Config / scheduler.Options
// explicitly (REDESIGN FLAGS §9: collaborators passed through context,
// not reached for as singletons), the same structured, leveled style
// the retrieval pack's own recipe/DAG execution engine uses
// (`log.Info().Str("run_id", runID)...Msg("recipe execution started")`).
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger to satisfy tools.Logger (kv pairs
// flattened as alternating key/value arguments, matching the shape the
// scheduler and source resolver call it with).
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to w at the given level. Pass os.Stderr
// and zerolog.InfoLevel for the CLI's default.
func New(w io.Writer, level zerolog.Level) Logger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// NewConsole builds a Logger with zerolog's human-readable console
// writer, for interactive terminal use (teacher's `--verbose`/`--quiet`
// flags map onto level here rather than a separate formatter).
func NewConsole(level zerolog.Level) Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	zl := zerolog.New(cw).Level(level).With().Timestamp().Logger()
	return Logger{zl: zl}
}

func (l Logger) Debug(msg string, kv ...any) { l.event(l.zl.Debug(), kv).Msg(msg) }
func (l Logger) Info(msg string, kv ...any)  { l.event(l.zl.Info(), kv).Msg(msg) }
func (l Logger) Warn(msg string, kv ...any)  { l.event(l.zl.Warn(), kv).Msg(msg) }

func (l Logger) Error(msg string, err error, kv ...any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	l.event(ev, kv).Msg(msg)
}

// event attaches alternating key/value pairs to a zerolog.Event,
// stringifying values via their natural formatting. A caller passing an
// odd-length kv list gets its trailing key dropped rather than a panic.
func (l Logger) event(ev *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case int64:
			ev = ev.Int64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}
