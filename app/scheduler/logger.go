package scheduler

import (
	"io"
	"log"
	"os"

	"github.com/amirphl/Susanoo/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newPipelineLogger builds the shared worker logger. Output goes to stdout
// and, when enabled, a size-rotated file so pipeline history survives
// restarts.
func newPipelineLogger(prefix string, cfg *config.LoggingConfig) *log.Logger {
	writers := []io.Writer{os.Stdout}
	if cfg != nil && cfg.EnablePipelineLog && cfg.PipelineLogPath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.PipelineLogPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	return log.New(io.MultiWriter(writers...), prefix+" ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}
