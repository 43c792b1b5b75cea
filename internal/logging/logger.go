// Package logging provides TITAN's process-wide structured logger.
//
// A single zap.Logger is constructed at boot (grounded on the teacher CLI's
// own zap setup in its main entry point: a production config by default,
// switched to a development config with debug level under a verbose flag)
// and handed out per-subsystem via Named categories so every log line
// carries which component emitted it without callers threading a logger
// through every constructor by hand.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names the core subsystems from spec §2. Kept as a closed set so
// log output stays greppable by component.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryGateway   Category = "gateway"
	CategoryPlanner   Category = "planner"
	CategoryExecutor  Category = "executor"
	CategoryPolicy    Category = "policy"
	CategoryApproval  Category = "approval"
	CategoryBroker    Category = "broker"
	CategorySkills    Category = "skills"
	CategoryScheduler Category = "scheduler"
	CategoryStore     Category = "store"
	CategoryConnector Category = "connector"
	CategoryWorkspace Category = "workspace"
)

var base *zap.Logger

// Init constructs the process-wide logger from a level string ("debug",
// "info", "warn", "error") and a format ("json" or "console"). Safe to call
// once at process start; subsequent calls replace the global logger, which
// tests use to redirect output.
func Init(level, format string) error {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	base = l
	return nil
}

func init() {
	// Always-available fallback so packages can log before Init runs (e.g.
	// in unit tests that never call it).
	base, _ = zap.NewDevelopment()
	if base == nil {
		base = zap.NewNop()
	}
}

// For returns the category-scoped logger. Cheap enough to call per request;
// zap.Named is a pointer-sharing operation, not an allocation-heavy one.
func For(cat Category) *zap.Logger {
	return base.Named(string(cat))
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	_ = base.Sync()
}

// Boot logs a one-off boot-time message at info level under CategoryBoot.
// Convenience for config/startup code that runs before any component
// constructs its own category logger.
func Boot(format string, args ...any) {
	For(CategoryBoot).Sugar().Infof(format, args...)
}

// Fatal logs at fatal level and exits. Reserved for internal invariant
// violations (spec §7) where the process must restart clean.
func Fatal(msg string, fields ...zap.Field) {
	base.Fatal(msg, fields...)
	os.Exit(1)
}
