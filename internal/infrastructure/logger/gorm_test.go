package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func traceQuery(l *GormLogger, ctx context.Context, begin time.Time, err error) {
	l.Trace(ctx, begin, func() (string, int64) {
		return `UPDATE "change_orders" SET "status"='approved' WHERE id = 1 AND version = 2`, 1
	}, err)
}

func TestGormLogger_LogMode(t *testing.T) {
	gormLog := NewGormLogger(zap.NewNop(), gormlogger.Info)
	changed, ok := gormLog.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gormLog.logLevel, "original is unchanged")
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		begin   time.Time
		err     error
		wantMsg string
	}{
		{"error", gormlogger.Error, nil, time.Now(), errors.New("deadlock detected"), "SQL Error"},
		{"not found is ignored", gormlogger.Error, nil, time.Now(), gormlogger.ErrRecordNotFound, ""},
		{"slow query", gormlogger.Warn, []GormLoggerOption{WithSlowThreshold(time.Nanosecond)}, time.Now().Add(-time.Second), nil, "SLOW SQL"},
		{"normal query", gormlogger.Info, nil, time.Now(), nil, "SQL Query"},
		{"silent", gormlogger.Silent, nil, time.Now(), errors.New("x"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gormLog := NewGormLogger(zap.New(core), tt.level, tt.opts...)

			traceQuery(gormLog, context.Background(), tt.begin, tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			assert.Contains(t, recorded.All()[0].Message, tt.wantMsg)
		})
	}
}

func TestGormLogger_Trace_CorrelationFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Info)

	ctx := WithTenantID(WithRequestID(context.Background(), "req-7"), "tenant-3")
	traceQuery(gormLog, ctx, time.Now(), nil)

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "tenant-3", fields["tenant_id"])
	assert.Equal(t, int64(1), fields["rows"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
	}
	for level, want := range tests {
		t.Run(level, func(t *testing.T) {
			assert.Equal(t, want, MapGormLogLevel(level))
		})
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
