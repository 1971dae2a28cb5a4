package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category loggers. They are no-ops until InitLoggers runs, so packages
// and tests work without initialization.
var (
	ErrorLogger    = zap.NewNop()
	AuditLogger    = zap.NewNop()
	RequestLogger  = zap.NewNop()
	SecurityLogger = zap.NewNop()
	SystemLogger   = zap.NewNop()
)

// Stdout can be passed as dir to send every category to standard output.
const Stdout = "stdout"

func encoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

func newLogger(dir, name string, level zapcore.Level) (*zap.Logger, error) {
	var ws zapcore.WriteSyncer
	if dir == Stdout {
		ws = zapcore.Lock(os.Stdout)
	} else {
		file, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		ws = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		ws,
		level,
	)
	return zap.New(core).With(zap.String("category", name)), nil
}

// InitLoggers opens one JSON log per category under dir.
func InitLoggers(dir string) error {
	if dir != Stdout {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}

	targets := []struct {
		logger **zap.Logger
		name   string
		level  zapcore.Level
	}{
		{&ErrorLogger, "errors", zapcore.ErrorLevel},
		{&AuditLogger, "audit", zapcore.InfoLevel},
		{&RequestLogger, "request", zapcore.InfoLevel},
		{&SecurityLogger, "security", zapcore.WarnLevel},
		{&SystemLogger, "system", zapcore.InfoLevel},
	}
	for _, target := range targets {
		l, err := newLogger(dir, target.name, target.level)
		if err != nil {
			return fmt.Errorf("create %s logger: %w", target.name, err)
		}
		*target.logger = l
	}
	return nil
}

func SyncLoggers() {
	_ = ErrorLogger.Sync()
	_ = AuditLogger.Sync()
	_ = RequestLogger.Sync()
	_ = SecurityLogger.Sync()
	_ = SystemLogger.Sync()
}
