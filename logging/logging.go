// Package logging configures the global zap logger.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string
	// FileName enables a rotated log file next to stderr output.
	FileName   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	JSON       bool
}

// Init replaces the global logger. Callers use zap.L().
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return err
		}
	}

	core := zapcore.NewCore(newEncoder(cfg.JSON), newWriter(cfg), level)
	zap.ReplaceGlobals(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	return nil
}

func newEncoder(json bool) zapcore.Encoder {
	encodeConfig := zap.NewProductionEncoderConfig()
	encodeConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encodeConfig.TimeKey = "time"
	encodeConfig.EncodeCaller = zapcore.ShortCallerEncoder
	if json {
		encodeConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encodeConfig)
	}
	encodeConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encodeConfig)
}

// Logs go to stderr so generators writing XMLTV to stdout stay clean.
func newWriter(cfg Config) zapcore.WriteSyncer {
	stderr := zapcore.Lock(os.Stderr)
	if cfg.FileName == "" {
		return stderr
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = 10
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   cfg.FileName,
		MaxSize:    maxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return zapcore.NewMultiWriteSyncer(zapcore.AddSync(lumberJackLogger), stderr)
}
