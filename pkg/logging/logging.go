package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"xchg/pkg/types"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `yaml:"level"`  // trace, debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // optional, rotated by size
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Configure sets up the package level logrus logger. Local and dev
// environments log at debug unless a level is configured.
func Configure(cfg Config, envName types.EnvName) error {
	level := log.InfoLevel
	if envName == types.EnvLocal || envName == types.EnvDev {
		level = log.DebugLevel
	}
	if cfg.Level != "" {
		lvl, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("fail to parse log level '%v': %v", cfg.Level, err)
		}
		level = lvl
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format '%v'", cfg.Format)
	}

	log.SetOutput(Output(cfg))
	return nil
}

// Output is stdout, teed into a rotating file when one is configured.
func Output(cfg Config) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    withDefault(cfg.MaxSizeMB, 100),
		MaxBackups: withDefault(cfg.MaxBackups, 5),
		MaxAge:     withDefault(cfg.MaxAgeDays, 30),
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotator)
}

func withDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
