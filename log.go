package radish

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

func init() {
	pkgLogger.Store(slog.Default())
}

// SetLogging switches debug tracing of coroutines on or off.
// When enabled, the package logger writes debug records to stderr.
func SetLogging(enable bool) {
	if enable {
		pkgLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	} else {
		pkgLogger.Store(slog.Default())
	}
}

// SetLogger replaces the package logger used by wait handles, pools
// and managers created without WithLogger. A nil logger restores slog.Default().
func SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	pkgLogger.Store(logger)
}

func logger() *slog.Logger {
	return pkgLogger.Load()
}

// recoverLogged runs fn and logs a panic instead of propagating it.
// Used where one failing listener must not stop the others.
func recoverLogged(log *slog.Logger, what string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			log.Warn("recovered panic", "in", what, "panic", fmt.Sprint(err))
		}
	}()
	fn()
}
