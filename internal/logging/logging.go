package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
)

// New creates a standard library logger with a consistent prefix and flags.
// When cfg.File is set, output is also written to a size-rotated file.
func New(service string, cfg config.LogConfig) *log.Logger {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}
	return log.New(out, "["+service+"] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}
