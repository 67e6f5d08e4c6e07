package logger

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Fields is an alias so callers don't need to import logrus.
type Fields = log.Fields

var (
	base    = log.New()
	entry   = base.WithField("service", "sante-etl")
	logFile *os.File
)

// InitLogger sets the level and, when filename is not empty, mirrors output
// into that file as well as stderr.
func InitLogger(filename string, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	base.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if filename == "" {
		base.SetOutput(os.Stderr)
		return nil
	}
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	base.SetOutput(io.MultiWriter(os.Stderr, logFile))
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

func Close() {
	if logFile != nil {
		logFile.Close()
	}
}

// WithFields returns an entry carrying the given structured fields.
func WithFields(f Fields) *log.Entry {
	return entry.WithFields(f)
}

func Info(args ...interface{}) {
	entry.Info(args...)
}

func Infof(format string, v ...interface{}) {
	entry.Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	entry.Debugf(format, v...)
}

func Error(args ...interface{}) {
	entry.Error(args...)
}

func Errorf(format string, v ...interface{}) {
	entry.Errorf(format, v...)
}

func Warn(args ...interface{}) {
	entry.Warn(args...)
}

func Warnf(format string, v ...interface{}) {
	entry.Warnf(format, v...)
}
