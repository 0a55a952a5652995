// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sqlLogger writes the gorm events of an activations database to zerolog.
type sqlLogger struct {
	zerolog.Logger
}

var _ gormlogger.Interface = sqlLogger{}

func newSQLLogger(parent zerolog.Logger, filename string) sqlLogger {
	return sqlLogger{Logger: parent.With().Str("db", filename).Logger()}
}

var gormToZeroLogLevel = map[gormlogger.LogLevel]zerolog.Level{
	gormlogger.Silent: zerolog.Disabled,
	gormlogger.Error:  zerolog.ErrorLevel,
	gormlogger.Warn:   zerolog.WarnLevel,
	gormlogger.Info:   zerolog.InfoLevel,
}

// LogMode never lowers the level below the one of the parent logger.
func (l sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	zeroLevel, ok := gormToZeroLogLevel[level]
	if !ok {
		zeroLevel = zerolog.TraceLevel
	}
	if zeroLevel != zerolog.Disabled && zeroLevel < l.GetLevel() {
		zeroLevel = l.GetLevel()
	}
	return sqlLogger{Logger: l.Level(zeroLevel)}
}

func (l sqlLogger) Info(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Info().Msgf(msg, data...)
}

func (l sqlLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Warn().Msgf(msg, data...)
}

func (l sqlLogger) Error(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Error().Msgf(msg, data...)
}

// Trace skips ErrRecordNotFound: Read reports missing sentences itself.
func (l sqlLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	switch {
	case failed && l.GetLevel() <= zerolog.ErrorLevel:
		sql, rows := fc()
		l.Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", time.Since(begin)).Msg("activations query failed")
	case l.GetLevel() <= zerolog.TraceLevel:
		sql, rows := fc()
		l.Logger.Trace().Str("sql", sql).Int64("rows", rows).Dur("elapsed", time.Since(begin)).Msg("activations query")
	}
}
