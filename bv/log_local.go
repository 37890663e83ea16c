package bv

import (
	"io"
	"log"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
)

// logSink writes messages through the standard logger, optionally into a rotating
// log file.
type logSink struct {
	mu   sync.Mutex
	file *lumberjack.Logger
}

var sink logSink

func (s *logSink) write(msg string) {
	log.Print(msg)
}

func (s *logSink) setFile(file *lumberjack.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
	}
	s.file = file
	var w io.Writer = os.Stderr
	if file != nil {
		w = file
	}
	log.SetOutput(w)
}

// LogConfig is the [logging] section of a TOML config.  MaxSize is in megabytes
// and MaxAge in days.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

// SetLogger sends log messages to the configured file, rotating it as it grows.
// Without a logfile messages stay on stderr.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("No logfile configured; logging to stderr.\n")
		return
	}
	Infof("Logging to %s\n", c.Logfile)
	sink.setFile(&lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	})
}

// Shutdown closes any log file in use.
func Shutdown() {
	sink.setFile(nil)
}
