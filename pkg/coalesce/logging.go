package coalesce

import (
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileConfig configures an optional rotating log file sink, the same
// shape the teacher keeps on its settings.Logger struct, reused here
// directly since a coordinator is typically one component embedded in a
// larger service that already carries this config.
type LogFileConfig struct {
	FileLogName string `mapstructure:"file_log_name"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxSize     int    `mapstructure:"max_size"`
	Compress    bool   `mapstructure:"compress"`
}

// newFileLogger builds a zap.Logger writing JSON-encoded entries to a
// lumberjack-rotated file. Used only when a Coordinator is constructed
// with WithLogFile; the zero-value Coordinator logs nowhere
// (zap.NewNop()).
func newFileLogger(cfg LogFileConfig) *zap.Logger {
	sink := &lumberjack.Logger{
		Filename:   cfg.FileLogName,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		MaxSize:    cfg.MaxSize,
		Compress:   cfg.Compress,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(sink), zap.InfoLevel)
	return zap.New(core)
}
