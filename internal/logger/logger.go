package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tektoncd/tekton-lsp/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.Mutex
	// Default logger writes plain messages to stderr
	std = plain(os.Stderr)
)

// plain logs the bare message, which is what the command line wants.
func plain(w io.Writer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

func SetOutput(output io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std = plain(output)
}

func get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

func Printf(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Println(v ...interface{}) {
	get().Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Fatal(v ...interface{}) {
	get().Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	get().Fatalf(format, v...)
}

// New builds the structured server logger. The language server owns stdout,
// so output goes to stderr unless cfg.File names a file.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = level
	zcfg.Development = false
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
	}
	return zcfg.Build()
}
