package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// zapLogger routes gorm's logging into zap. Failed statements log at error
// level, statements slower than slow at warn, and everything else at debug
// when the level is logger.Info.
type zapLogger struct {
	log   *zap.Logger
	level logger.LogLevel
	slow  time.Duration
}

func newZapLogger(log *zap.Logger, slow time.Duration, debug bool) logger.Interface {
	if log == nil {
		return logger.Default.LogMode(logger.Silent)
	}
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return &zapLogger{log: log.Named("gorm"), level: level, slow: slow}
}

func (l *zapLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *zapLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *zapLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *zapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.log.Error("query failed", zap.Error(err), zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug("query", zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
