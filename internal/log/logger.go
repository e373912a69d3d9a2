// Package log provides a global logger with a configurable level. Output goes
// to stderr so that command output on stdout stays machine-readable.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected during normal use.
	LevelWarning              // Logs anomalies that occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO, including TX/RX hexdumps.
)

var (
	logMutex       sync.Mutex
	globalLogLevel           = LevelWarning
	output         io.Writer = os.Stderr
)

var labels = map[Level]string{
	LevelDebug:   "[DEBUG]",
	LevelInfo:    "[INFO ]",
	LevelWarning: "[WARN ]",
	LevelError:   "[ERROR]",
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log messages to w. The default is os.Stderr.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	output = w
}

func logAt(level Level, format string, a ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if level > globalLogLevel {
		return
	}
	msg := fmt.Sprintf("%s %s ", time.Now().Format("2006-01-02 15:04:05.000"), labels[level])
	msg += fmt.Sprintf(format, a...)
	fmt.Fprintln(output, msg)
}

func Debug(format string, a ...interface{}) {
	logAt(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	logAt(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	logAt(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	logAt(LevelError, format, a...)
}
