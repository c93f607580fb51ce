package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled sugared logger handed to every component.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	Named(name string) Logger
	Sync() error
}

type logger struct {
	*zap.SugaredLogger
}

func (l *logger) Named(name string) Logger {
	return &logger{l.SugaredLogger.Named(name)}
}

// New builds the root logger; info and below go to stdout, warn and
// above to stderr.
func New(options *Options) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(options.timeLayout)
	encoderConfig.ConsoleSeparator = " "

	level := zapcore.Level(options.level)
	cores := []zapcore.Core{zapcore.NewCore(
		options.outputEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= level && lvl < zapcore.WarnLevel
		}),
	), zapcore.NewCore(
		options.outputEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= level && lvl >= zapcore.WarnLevel
		}),
	)}

	var opts []zap.Option
	if options.stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.WarnLevel))
	}
	zapLogger := zap.New(zapcore.NewTee(cores...), opts...).Sugar()
	if options.name != "" {
		zapLogger = zapLogger.Named(options.name)
	}
	return &logger{zapLogger}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() Logger {
	return &logger{zap.NewNop().Sugar()}
}
