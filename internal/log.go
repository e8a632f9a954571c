package internal

import (
	"fmt"
	"log"
	"os"
)

// Logging is the printf-style logger used for acquisition and store
// failures. It is satisfied by *log.Logger.
type Logging interface {
	Printf(format string, v ...interface{})
}

type logger struct {
	log *log.Logger
}

func (l *logger) Printf(format string, v ...interface{}) {
	_ = l.log.Output(2, fmt.Sprintf(format, v...))
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

var l Logging = &logger{
	log: log.New(os.Stderr, "go-lock: ", log.LstdFlags|log.Lshortfile),
}

// SetLogger replaces the package logger, a nil logger discards all output.
func SetLogger(logger Logging) {
	if logger == nil {
		logger = nopLogger{}
	}
	l = logger
}

// GetLogger returns the current package logger, stderr by default.
func GetLogger() Logging {
	return l
}
