package log

import (
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	levels       = []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel}
	globalLogger = NewLogger(LevelDebug, os.Stdout)
)

type Logger struct {
	backend *logrus.Logger
}

func NewLogger(level int, out io.Writer) *Logger {
	if level < 0 {
		panic(errors.New("invalid log level"))
	}
	if level > LevelDebug {
		level = LevelDebug
	}
	backend := logrus.New()
	backend.SetOutput(out)
	backend.SetLevel(levels[level])
	backend.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return &Logger{backend: backend}
}

// ParseLevel maps a config level name onto one of the Level constants,
// falling back to LevelInfo for unknown names.
func ParseLevel(name string) int {
	parsed, err := logrus.ParseLevel(name)
	if err != nil {
		return LevelInfo
	}
	for i, level := range levels {
		if level == parsed {
			return i
		}
	}
	return LevelInfo
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.backend.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.backend.Warnf(format, args...)
}

func (l *Logger) Error(err error) {
	l.backend.Error(err)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.backend.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.backend.Debugf(format, args...)
}

func (l *Logger) SetOutput(out io.Writer) {
	l.backend.SetOutput(out)
}

func (l *Logger) SetLevel(level int) {
	if level < 0 {
		level = LevelError
	}
	if level > LevelDebug {
		level = LevelDebug
	}
	l.backend.SetLevel(levels[level])
}

func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

func Error(err error) {
	globalLogger.Error(err)
}

func Errorf(format string, args ...interface{}) {
	globalLogger.Errorf(format, args...)
}

func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

func SetOutput(out io.Writer) {
	globalLogger.SetOutput(out)
}

func SetLevel(level int) {
	globalLogger.SetLevel(level)
}
