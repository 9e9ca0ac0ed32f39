package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger; debug selects the Debug level
type Logger struct {
	debug bool
	*zap.SugaredLogger
}

// New creates a logger writing JSON lines to w (stderr when nil)
func New(debug bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level)
	return &Logger{
		debug:         debug,
		SugaredLogger: zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).Sugar(),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// DebugEnabled reports whether debug logging is on
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

// Named returns a child logger tagged with a component name
func (l *Logger) Named(name string) *Logger {
	return &Logger{debug: l.debug, SugaredLogger: l.SugaredLogger.Named(name)}
}

// Printf logs at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

// Println logs at info level
func (l *Logger) Println(v ...interface{}) {
	l.Infoln(v...)
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}
