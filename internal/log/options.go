package log

import "go.uber.org/zap/zapcore"

type Level int8

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	WarnLevel  = Level(zapcore.WarnLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

type OutputEncoder func(config zapcore.EncoderConfig) zapcore.Encoder

func JSONOutputEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return zapcore.NewJSONEncoder(config)
}

func ConsoleOutputEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return zapcore.NewConsoleEncoder(config)
}

type Options struct {
	//log level, the optional value is DebugLevel InfoLevel WarnLevel ErrorLevel
	level Level
	//output mode, the optional value is JSONOutputEncoder ConsoleOutputEncoder
	outputEncoder OutputEncoder
	//report warn level stack trace
	stacktrace bool
	//time layout
	timeLayout string
	//init the named
	name string
}

func (o *Options) WithLevel(level Level) *Options {
	o.level = level
	return o
}

func (o *Options) WithOutputEncoder(outputEncoder OutputEncoder) *Options {
	o.outputEncoder = outputEncoder
	return o
}

func (o *Options) WithStacktrace(stacktrace bool) *Options {
	o.stacktrace = stacktrace
	return o
}

func (o *Options) WithTimeLayout(timeLayout string) *Options {
	o.timeLayout = timeLayout
	return o
}

func (o *Options) WithNamed(name string) *Options {
	o.name = name
	return o
}

func DefaultOptions() *Options {
	return &Options{
		level:         InfoLevel,
		timeLayout:    "2006-01-02 15:04:05.000",
		outputEncoder: ConsoleOutputEncoder,
	}
}
