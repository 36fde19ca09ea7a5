package logger

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/olegkotsar/ftpreconcile/config"
)

// ZapLogger writes JSON lines through zap. Verbose maps to zap's debug level
// one step below Debug.
type ZapLogger struct {
	log *zap.Logger
}

const zapVerboseLevel = zapcore.DebugLevel - 1

func zapLevel(level config.LogLevel) zapcore.Level {
	switch level {
	case config.LogLevelError:
		return zapcore.ErrorLevel
	case config.LogLevelDebug:
		return zapcore.DebugLevel
	case config.LogLevelVerbose:
		return zapVerboseLevel
	case config.LogLevelSilent:
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger creates a JSON logger writing to w.
func NewZapLogger(cfg *config.LoggerConfig, w io.Writer) (Logger, error) {
	if cfg == nil {
		cfg = &config.LoggerConfig{}
	}
	cfg.ApplyDefaults()
	if w == nil {
		return nil, fmt.Errorf("zap logger needs a writer")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = encodeLevel
	if cfg.TimeFormat == "" {
		encCfg.TimeKey = ""
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapLevel(cfg.Level)),
	)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller())
	}

	return &ZapLogger{log: zap.New(core, opts...)}, nil
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == zapVerboseLevel {
		enc.AppendString("verbose")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.log.Error(format(msg, args))
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.log.Warn(format(msg, args))
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.log.Info(format(msg, args))
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.log.Debug(format(msg, args))
}

func (z *ZapLogger) Verbose(msg string, args ...interface{}) {
	if ce := z.log.Check(zapVerboseLevel, format(msg, args)); ce != nil {
		ce.Write()
	}
}

func (z *ZapLogger) With(key string, value interface{}) Logger {
	return &ZapLogger{log: z.log.With(zap.Any(key, value))}
}

func (z *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &ZapLogger{log: z.log.With(zf...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.log.Sync()
}
