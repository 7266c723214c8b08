package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logs hands out component loggers that share one output.
type Logs struct {
	out io.Writer
	rot *lumberjack.Logger
}

// OpenLogs writes to a rotating file when cfg.File is set, otherwise stderr.
func OpenLogs(cfg LogConfig) *Logs {
	if cfg.File == "" {
		return &Logs{out: os.Stderr}
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return &Logs{out: rot, rot: rot}
}

// New returns a logger prefixed "[component] ".
func (l *Logs) New(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (l *Logs) Close() error {
	if l.rot == nil {
		return nil
	}
	return l.rot.Close()
}
