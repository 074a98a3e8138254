package loom

import (
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var loggerValue atomic.Pointer[zap.Logger]

func init() {
	loggerValue.Store(newLogger(os.Stderr))
}

func newLogger(w io.Writer) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), zapcore.InfoLevel)
	return zap.New(core)
}

func logger() *zap.Logger {
	return loggerValue.Load()
}

// SetErrorStream redirects the runtime's diagnostic output to w. The default
// stream is standard error.
func SetErrorStream(w io.Writer) {
	loggerValue.Store(newLogger(w))
}
