// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging is the bridge's logger sink: textual events carrying an
// identifier and a level. It is a thin facade over logrus so that host
// bindings can drive the level/destination through a single Init call.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is the bridge's log level, with the numeric mapping exposed to
// host bindings (0=Error .. 4=Trace).
type Level int32

const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

var (
	mu     sync.Mutex
	logger *logrus.Logger
)

// Init configures the process logger. A negative level keeps the default
// (Warn). An empty fileName logs to stderr; otherwise the file is opened
// in append mode, falling back to stderr when it cannot be opened. Init
// returns the effective level. Calling Init again reconfigures the sink.
func Init(l Level, fileName string) Level {
	mu.Lock()
	defer mu.Unlock()
	if l < 0 {
		l = WarnLevel
	}
	var out io.Writer = os.Stderr
	if fileName != "" {
		if f, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	lg := logrus.New()
	lg.SetOutput(out)
	lg.SetLevel(l.toLogrus())
	logger = lg
	return l
}

func get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		lg := logrus.New()
		lg.SetOutput(os.Stderr)
		lg.SetLevel(WarnLevel.toLogrus())
		logger = lg
	}
	return logger
}

// Log emits one event under the given identifier.
func Log(l Level, identifier, message string) {
	get().WithField("identifier", identifier).Log(l.toLogrus(), message)
}

// ParseLevel maps a level name to a Level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "error":
		return ErrorLevel, nil
	case "warn", "warning", "":
		return WarnLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "trace":
		return TraceLevel, nil
	}
	return WarnLevel, fmt.Errorf("logging: unknown level %q", name)
}

// Error logs at the error level.
func Error(identifier, message string) { Log(ErrorLevel, identifier, message) }

// Warn logs at the warn level.
func Warn(identifier, message string) { Log(WarnLevel, identifier, message) }

// Info logs at the info level.
func Info(identifier, message string) { Log(InfoLevel, identifier, message) }

// Debug logs at the debug level.
func Debug(identifier, message string) { Log(DebugLevel, identifier, message) }
