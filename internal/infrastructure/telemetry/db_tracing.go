package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include query variables in spans (dev only)
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: defaultSlowQueryThreshold,
		DBSystem:        "postgresql",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs otelgorm on db plus callbacks that annotate the
// query span with rows affected, table and a slow query marker.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = defaultSlowQueryThreshold
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := &dbSpanCallback{slowQueryThresh: cfg.SlowQueryThresh}
	if err := cb.register(db); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type dbSpanCallback struct {
	slowQueryThresh time.Duration
}

func (c *dbSpanCallback) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (c *dbSpanCallback) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > c.slowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

func (c *dbSpanCallback) register(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("span_timing:before_create", c.before),
		cb.Query().Before("gorm:query").Register("span_timing:before_query", c.before),
		cb.Update().Before("gorm:update").Register("span_timing:before_update", c.before),
		cb.Delete().Before("gorm:delete").Register("span_timing:before_delete", c.before),
		cb.Row().Before("gorm:row").Register("span_timing:before_row", c.before),
		cb.Raw().Before("gorm:raw").Register("span_timing:before_raw", c.before),
		cb.Create().After("gorm:create").Register("span_timing:after_create", c.after),
		cb.Query().After("gorm:query").Register("span_timing:after_query", c.after),
		cb.Update().After("gorm:update").Register("span_timing:after_update", c.after),
		cb.Delete().After("gorm:delete").Register("span_timing:after_delete", c.after),
		cb.Row().After("gorm:row").Register("span_timing:after_row", c.after),
		cb.Raw().After("gorm:raw").Register("span_timing:after_raw", c.after),
	)
}
