package log

// Package-level convenience wrappers around the global logger. Safe to
// call before NewLog/MustInit: GetLogger falls back to a no-op logger.

func Info(args ...interface{})                  { GetLogger().Info(args...) }
func Infof(format string, args ...interface{})  { GetLogger().Infof(format, args...) }
func Infow(msg string, kv ...interface{})       { GetLogger().Infow(msg, kv...) }

func Debug(args ...interface{})                 { GetLogger().Debug(args...) }
func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }
func Debugw(msg string, kv ...interface{})      { GetLogger().Debugw(msg, kv...) }

func Warn(args ...interface{})                  { GetLogger().Warn(args...) }
func Warnf(format string, args ...interface{})  { GetLogger().Warnf(format, args...) }
func Warnw(msg string, kv ...interface{})       { GetLogger().Warnw(msg, kv...) }

func Error(args ...interface{})                 { GetLogger().Error(args...) }
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }
func Errorw(msg string, kv ...interface{})      { GetLogger().Errorw(msg, kv...) }

func Fatal(args ...interface{})                 { GetLogger().Fatal(args...) }
func Fatalf(format string, args ...interface{}) { GetLogger().Fatalf(format, args...) }
