package wasmy

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// logger is the package-wide diagnostic sink. It defaults to a no-op logger
// so the library is silent unless a host opts in, matching the original
// implementation's cfg(debug_assertions) println! statements with a
// structured, always-compiled equivalent.
var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger installs l as the package's diagnostic sink. Passing nil resets
// to a no-op logger. Safe to call concurrently with normal operation.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func log() *zap.Logger {
	return logger.Load()
}
