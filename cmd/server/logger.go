package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "vault.log"

// newLogger builds a zap logger that writes to stdout and to a size-rotated
// file under cfg.LogDir.
func newLogger(cfg Config) (*zap.Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if err := level.Set(cfg.LogLevel); err != nil {
		level = zapcore.InfoLevel
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, logFileName),
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogBackups,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		level,
	)

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	if cfg.IsProduction() {
		consoleEncoderConfig = encoderConfig
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(zapcore.NewTee(fileCore, consoleCore)), nil
}

// zapAdapter bridges the zap sugared logger to the printf-style interface
// the vault package expects.
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

func newZapAdapter(logger *zap.Logger) *zapAdapter {
	return &zapAdapter{sugar: logger.Sugar()}
}

func (z *zapAdapter) Debug(format string, args ...any) {
	z.sugar.Debugf(format, args...)
}

func (z *zapAdapter) Info(format string, args ...any) {
	z.sugar.Infof(format, args...)
}

func (z *zapAdapter) Error(format string, args ...any) {
	z.sugar.Errorf(format, args...)
}

// cleanupOldLogs removes rotated log files beyond the retention count. The
// rotator enforces the same bound while running; this sweep catches files
// left behind across restarts or config changes.
func cleanupOldLogs(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	base := strings.TrimSuffix(logFileName, ".log")

	var rotated []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == logFileName {
			continue
		}
		if strings.HasPrefix(name, base+"-") && (strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.gz")) {
			rotated = append(rotated, name)
		}
	}

	// rotated names embed their timestamp, so lexical order is age order
	sort.Sort(sort.Reverse(sort.StringSlice(rotated)))

	removed := 0
	for _, name := range rotated[min(keep, len(rotated)):] {
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			removed++
		}
	}

	return removed, nil
}
