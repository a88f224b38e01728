// Package logging builds the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to stdout at the named level.  Unknown
// level names fall back to info.
func New(level string, jsonFormat bool) *log.Logger {
	return NewWithWriter(os.Stdout, level, jsonFormat)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, jsonFormat bool) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	if jsonFormat {
		l.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
