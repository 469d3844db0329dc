package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	consoleTimeKeyConstant               = "time"
	consoleLevelKeyConstant              = "level"
	consoleMessageKeyConstant            = "message"
	consoleCallerKeyConstant             = "caller"
)

// LogLevel enumerates supported diagnostic log levels.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat enumerates supported diagnostic log encodings.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

// LoggerOutputs groups the loggers produced for a command session.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers for the CLI. Every logger it creates writes to the same sink.
type LoggerFactory struct {
	sink io.Writer
}

// NewLoggerFactory constructs a LoggerFactory writing to sink, or to standard error when sink is nil.
func NewLoggerFactory(sink io.Writer) LoggerFactory {
	if sink == nil {
		sink = os.Stderr
	}
	return LoggerFactory{sink: sink}
}

// CreateLoggerOutputs builds the diagnostic logger and, for console format, a human-readable console logger.
func (factory LoggerFactory) CreateLoggerOutputs(logLevel LogLevel, logFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := resolveZapLevel(logLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	normalizedFormat := LogFormat(strings.ToLower(strings.TrimSpace(string(logFormat))))
	sink := factory.sink
	if sink == nil {
		sink = os.Stderr
	}
	errorSink := zapcore.Lock(zapcore.AddSync(sink))

	switch normalizedFormat {
	case LogFormatStructured:
		encoderConfiguration := zap.NewProductionEncoderConfig()
		encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfiguration), errorSink, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(core),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		diagnosticConfiguration := zap.NewDevelopmentEncoderConfig()
		diagnosticConfiguration.TimeKey = consoleTimeKeyConstant
		diagnosticConfiguration.LevelKey = consoleLevelKeyConstant
		diagnosticConfiguration.MessageKey = consoleMessageKeyConstant
		diagnosticConfiguration.CallerKey = consoleCallerKeyConstant
		diagnosticCore := zapcore.NewCore(zapcore.NewConsoleEncoder(diagnosticConfiguration), errorSink, zapLevel)

		consoleConfiguration := zapcore.EncoderConfig{
			MessageKey:     consoleMessageKeyConstant,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfiguration), errorSink, zapLevel)

		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}
}

func resolveZapLevel(logLevel LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(logLevel)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}
}
