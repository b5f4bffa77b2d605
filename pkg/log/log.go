package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

// Conf holds logger configuration options.
type Conf struct {
	Output     string
	Path       string
	Filename   string
	Level      string
	KeepHours  int
	RotateSize int
	RotateNum  int
}

// SetDefaults returns the default logger configuration.
func SetDefaults() *Conf {
	return &Conf{
		Output:     "stdout",
		Path:       "./logs",
		Filename:   "gateway.log",
		Level:      "INFO",
		KeepHours:  7,
		RotateSize: 100,
		RotateNum:  10,
	}
}

// Validate checks the configuration and fills in missing defaults for file output.
func (c *Conf) Validate() error {
	if c.Output == "file" {
		if c.Path == "" {
			return fmt.Errorf("log path is required when output is 'file'")
		}
		if c.RotateSize <= 0 {
			c.RotateSize = 100
		}
		if c.RotateNum <= 0 {
			c.RotateNum = 10
		}
		if c.KeepHours <= 0 {
			c.KeepHours = 7
		}
	}
	return nil
}

// NewLog initializes the logger and returns the underlying zap.Logger.
func NewLog(conf *Conf) (*zap.Logger, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}

	var writeSyncer zapcore.WriteSyncer
	switch conf.Output {
	case "file":
		writeSyncer = getFileLogWriter(conf)
	default:
		writeSyncer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(getEncoder(), writeSyncer, parseLogLevel(conf.Level))
	newLogger := zap.New(core, zap.AddCallerSkip(1), zap.AddCaller())

	mu.Lock()
	logger = newLogger
	sugar = newLogger.Sugar()
	mu.Unlock()

	sugar.Debugw("log initialized", "output", conf.Output, "level", conf.Level)
	return newLogger, nil
}

// MustInit initializes the global logger instance, panics on failure.
func MustInit(conf *Conf) {
	if _, err := NewLog(conf); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

// GetLogger returns the global zap.SugaredLogger instance.
func GetLogger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugar == nil {
		return zap.NewNop().Sugar()
	}
	return sugar
}

// GetZapLogger returns the underlying *zap.Logger, for adapters that need
// zap's structured API rather than the sugared one.
func GetZapLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.LineEnding = zapcore.DefaultLineEnding
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = customTimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeName = zapcore.FullNameEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
