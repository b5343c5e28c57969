package pipelines

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var severities = map[zapcore.Level]string{
	zapcore.DebugLevel:  "DEBUG",
	zapcore.InfoLevel:   "INFO",
	zapcore.WarnLevel:   "WARNING",
	zapcore.ErrorLevel:  "ERROR",
	zapcore.DPanicLevel: "CRITICAL",
	zapcore.PanicLevel:  "ALERT",
	zapcore.FatalLevel:  "EMERGENCY",
}

// InstallLogger replaces zap's global logger with a JSON logger whose level
// names match Cloud Logging severities, so Flow logs can be queried back as
// check history. The returned func restores the previous global.
func InstallLogger(level zapcore.Level) func() {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.LevelKey = "severity"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(severities[l])
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(level),
	)
	return zap.ReplaceGlobals(zap.New(core))
}
