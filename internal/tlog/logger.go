// Package tlog provides the small leveled logger titankv uses for recovery
// and compaction diagnostics. It has no external dependency
// on purpose: logging policy here is "write lines a human reads in a
// terminal", the same job the teacher's dKVLogger does for its raft layer,
// minus the interface it implements to satisfy dragonboat.
package tlog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level controls which calls actually produce output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelOff
)

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

// Logger is a named, leveled wrapper around the standard log.Logger.
type Logger struct {
	name   string
	level  Level
	logger *log.Logger
}

// New creates a Logger that writes to os.Stderr, tagged with name (typically
// a package or component name such as "wal" or "store").
func New(name string) *Logger {
	return &Logger{
		name:   name,
		level:  LevelInfo,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) log(level Level, tag, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", tag, l.name, msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, "DEBUG", format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, "INFO", format, args...)
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	l.log(LevelWarning, "WARN", format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, "ERROR", format, args...)
}
