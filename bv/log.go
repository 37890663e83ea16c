package bv

import (
	"fmt"
	"time"
)

// ModeFlag is a logging severity.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	// Verbose logs Debug messages whatever the mode.
	Verbose bool

	mode = InfoMode

	levelTags = [...]string{
		DebugMode:    "   DEBUG ",
		InfoMode:     "    INFO ",
		WarningMode:  " WARNING ",
		ErrorMode:    "   ERROR ",
		CriticalMode: "CRITICAL ",
	}
)

// SetLogMode sets the lowest severity that is written.  SilentMode writes nothing.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

func LogMode() ModeFlag {
	return mode
}

func enabled(level ModeFlag) bool {
	return level >= mode || (level == DebugMode && Verbose)
}

func logf(level ModeFlag, format string, args ...interface{}) {
	if enabled(level) {
		sink.write(levelTags[level] + fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...interface{})    { logf(DebugMode, format, args...) }
func Infof(format string, args ...interface{})     { logf(InfoMode, format, args...) }
func Warningf(format string, args ...interface{})  { logf(WarningMode, format, args...) }
func Errorf(format string, args ...interface{})    { logf(ErrorMode, format, args...) }
func Criticalf(format string, args ...interface{}) { logf(CriticalMode, format, args...) }

// TimeLog appends the time since its creation to each message.  Formats are given
// without a trailing newline.
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) logf(level ModeFlag, format string, args ...interface{}) {
	logf(level, format+": %s\n", append(args, time.Since(t.start))...)
}

func (t TimeLog) Debugf(format string, args ...interface{})   { t.logf(DebugMode, format, args...) }
func (t TimeLog) Infof(format string, args ...interface{})    { t.logf(InfoMode, format, args...) }
func (t TimeLog) Warningf(format string, args ...interface{}) { t.logf(WarningMode, format, args...) }
func (t TimeLog) Errorf(format string, args ...interface{})   { t.logf(ErrorMode, format, args...) }
