// Package orm wires a MySQL connection through gorm, grounded on the
// teacher's pkg/orm/gorm.go, adapted to log through pkg/log's zap logger
// instead of a bespoke one.
package orm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/go-arcade/cadflight/pkg/log"
)

// Database is the connection configuration for the audit-log store.
type Database struct {
	Host         string
	Port         string
	User         string
	Password     string
	DB           string
	Enable       bool
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int // seconds
	MaxIdleTime  int // seconds
}

// New opens a gorm connection to cfg. Callers must check cfg.Enable before
// calling New; this module's buildlog store is entirely optional.
func New(cfg Database) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DB)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newGormLogger(),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orm: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Second)

	return db, nil
}

// zapGormLogger bridges gorm's logger.Interface onto pkg/log's zap logger,
// grounded on the teacher's pkg/database.GormLogger but trimmed to what
// the buildlog store actually needs (no configurable slow-query
// threshold beyond gorm's own default).
type zapGormLogger struct {
	level logger.LogLevel
}

func newGormLogger() logger.Interface {
	return &zapGormLogger{level: logger.Warn}
}

func (l *zapGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		log.GetLogger().Infof(msg, data...)
	}
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		log.GetLogger().Warnf(msg, data...)
	}
}

func (l *zapGormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		log.GetLogger().Errorf(msg, data...)
	}
}

func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	sql, rows := fc()
	elapsed := time.Since(begin)
	if err != nil && l.level >= logger.Error {
		log.GetLogger().Errorw("gorm query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
		return
	}
	if l.level >= logger.Info {
		log.GetLogger().Debugw("gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
