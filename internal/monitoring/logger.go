package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style signature shared by every diagnostic logger in
// the module.
type LogFunc func(format string, v ...interface{})

var current atomic.Pointer[LogFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the installed logger. It defaults to
// log.Printf and is safe to call from the decoder goroutines while tests swap
// the logger.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Prefixed returns a logger that prepends prefix to every format string,
// e.g. Prefixed("[serial] ").
func Prefixed(prefix string) LogFunc {
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
