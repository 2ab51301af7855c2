package config

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logs hands out prefixed loggers that share one output.
type Logs struct {
	out  io.Writer
	file *lumberjack.Logger
}

// OpenLogs builds the shared log output for cfg: stderr, a rotating file,
// both, or neither.
func OpenLogs(cfg LogConfig, dataDir string) *Logs {
	var writers []io.Writer
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}

	l := &Logs{}
	if cfg.File != "" {
		path := cfg.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		l.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, l.file)
	}

	switch len(writers) {
	case 0:
		l.out = io.Discard
	case 1:
		l.out = writers[0]
	default:
		l.out = io.MultiWriter(writers...)
	}
	return l
}

// Logger returns a logger writing to the shared output, e.g.
// Logger("sync") prefixes lines with "[sync] ".
func (l *Logs) Logger(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (l *Logs) Writer() io.Writer {
	return l.out
}

// Close closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
