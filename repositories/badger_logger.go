package repositories

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var _ badger.Logger = (*badgerLogger)(nil)

// badgerLogger redirects badger's printf-style logging to slog,
// tagging each entry with the store it comes from.
type badgerLogger struct {
	logger *slog.Logger
	store  string
}

func NewBadgerLogger(logger *slog.Logger) badger.Logger {
	return &badgerLogger{logger: logger, store: "badger"}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(clean(format, args), "store", l.store)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(clean(format, args), "store", l.store)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(clean(format, args), "store", l.store)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(clean(format, args), "store", l.store)
}

// clean drops the trailing newline badger appends to most messages.
func clean(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
