package log

import (
	"fmt"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// getFileLogWriter returns the WriteSyncer for logging to a rotating file.
func getFileLogWriter(conf *Conf) zapcore.WriteSyncer {
	name := conf.Filename
	if name == "" {
		name = "gateway.log"
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   fmt.Sprintf("%s/%s", conf.Path, name),
		MaxSize:    conf.RotateSize,
		MaxBackups: conf.RotateNum,
		MaxAge:     conf.KeepHours,
		Compress:   true,
	}
	return zapcore.AddSync(lumberJackLogger)
}
