// Package logx is a thin leveled wrapper around stdlib log.
// Level can be changed safely at runtime; a nil *Log discards everything,
// which lets optional components skip the "is logging configured" dance.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"testing"
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
)

const DefaultFlags = log.Ltime | log.Lshortfile

type Log struct {
	l      *log.Logger
	level  int32
	fatalf func(format string, args ...interface{})
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

func NewWriter(w io.Writer, level Level) *Log {
	if w == io.Discard {
		return nil
	}
	return &Log{
		l:     log.New(w, "", DefaultFlags),
		level: int32(level),
	}
}

type funcWriter func(format string, args ...interface{})

func (fw funcWriter) Write(b []byte) (int, error) {
	fw("%s", b)
	return len(b), nil
}

// NewTest routes output through t.Logf so parallel tests don't interleave
// on stderr, and Fatalf fails the test instead of killing the process.
func NewTest(t testing.TB, level Level) *Log {
	lg := &Log{
		l:      log.New(funcWriter(t.Logf), "", log.Lshortfile),
		level:  int32(level),
		fatalf: t.Fatalf,
	}
	return lg
}

func (lg *Log) SetLevel(level Level) {
	if lg == nil {
		return
	}
	atomic.StoreInt32(&lg.level, int32(level))
}

func (lg *Log) SetFlags(f int) {
	if lg == nil {
		return
	}
	lg.l.SetFlags(f)
}

func (lg *Log) Enabled(level Level) bool {
	if lg == nil {
		return false
	}
	return atomic.LoadInt32(&lg.level) >= int32(level)
}

func (lg *Log) logf(level Level, format string, args ...interface{}) {
	if lg.Enabled(level) {
		_ = lg.l.Output(3, fmt.Sprintf(format, args...))
	}
}

func (lg *Log) Errorf(format string, args ...interface{}) {
	lg.logf(LError, "error: "+format, args...)
}

func (lg *Log) Infof(format string, args ...interface{}) {
	lg.logf(LInfo, format, args...)
}

func (lg *Log) Debugf(format string, args ...interface{}) {
	lg.logf(LDebug, "debug: "+format, args...)
}

func (lg *Log) Fatalf(format string, args ...interface{}) {
	if lg != nil && lg.fatalf != nil {
		lg.fatalf(format, args...)
		return
	}
	lg.logf(LError, "fatal: "+format, args...)
	os.Exit(1)
}
