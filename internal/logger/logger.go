package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging across the pipeline.
const (
	FieldRunID      = "run_id"
	FieldComponent  = "component"
	FieldProduct    = "product"
	FieldRow        = "row"
	FieldStatus     = "status"
	FieldTarget     = "target"
	FieldField      = "field"
	FieldFile       = "file"
	FieldCount      = "count"
	FieldTotalCount = "total_count"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
)

var (
	// Logger is the global logger. It is a no-op until Initialize is called.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether JSON output is enabled.
	JSONOutput bool
)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. JSON output uses the zap production
// config; otherwise a console encoder writes to stderr so stdout stays free
// for the run summary.
func Initialize(jsonOutput, verbose bool) error {
	JSONOutput = jsonOutput

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		zapLogger, err = config.Build()
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encoderConfig),
				zapcore.AddSync(os.Stderr),
				level,
			),
		)
	}

	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Named returns a child of the global logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return Logger.Named(component).With(FieldComponent, component)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Logger.Sync()
}
