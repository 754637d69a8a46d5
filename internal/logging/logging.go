// Package logging provides component-scoped structured loggers for the
// mail gateway. Every package asks for its own named logger so log lines
// can be filtered by component without grepping message text.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu        sync.RWMutex
	infoOut   io.Writer = os.Stdout
	errorOut  io.Writer = os.Stderr
	baseLevel           = zerolog.InfoLevel
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Configure points the info and error sinks at the two append-only log
// files described by the gateway's external interface: a running record
// of processing activity and a separate record of errors worth operator
// attention. Either path may be empty to keep the corresponding stream on
// its default stdio destination.
func Configure(infoPath, errorPath string, level zerolog.Level) error {
	mu.Lock()
	defer mu.Unlock()

	baseLevel = level

	if infoPath != "" {
		f, err := os.OpenFile(infoPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		infoOut = f
	}
	if errorPath != "" {
		f, err := os.OpenFile(errorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		errorOut = f
	}
	return nil
}

// errorLevelWriter forwards only Warn-and-above records to the error sink,
// so a single component logger can still fan its writes into both files.
type errorLevelWriter struct {
	w io.Writer
}

func (w errorLevelWriter) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= zerolog.WarnLevel {
		return w.w.Write(p)
	}
	return len(p), nil
}

// WithComponent returns a logger tagged with the given component name,
// writing to both the info sink (all levels) and the error sink
// (warn/error/fatal only).
func WithComponent(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	multi := zerolog.MultiLevelWriter(infoOut, errorLevelWriter{w: errorOut})
	return zerolog.New(multi).
		Level(baseLevel).
		With().
		Timestamp().
		Str("component", name).
		Logger()
}
