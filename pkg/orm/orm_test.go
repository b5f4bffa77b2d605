package orm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestGormLoggerLogModeReturnsIndependentCopy(t *testing.T) {
	base := newGormLogger().(*zapGormLogger)
	quiet := base.LogMode(logger.Silent)

	assert.Equal(t, logger.Warn, base.level)
	assert.Equal(t, logger.Silent, quiet.(*zapGormLogger).level)
}

func TestGormLoggerTraceDoesNotPanicOnErrorOrSuccess(t *testing.T) {
	l := newGormLogger()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	assert.NotPanics(t, func() {
		l.Trace(context.Background(), time.Now(), fc, nil)
	})
	assert.NotPanics(t, func() {
		l.Trace(context.Background(), time.Now(), fc, assert.AnError)
	})
}
