package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger on top of a logrus entry.
// Badger reports routine lifecycle events at INFO; those are demoted to DEBUG so a crawl's
// INFO stream only shows crawl progress.
type BadgerLogrusAdapter struct {
	entry *logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry: entry}
}

// Badger terminates most messages with a newline; logrus adds its own
func trim(f string) string { return strings.TrimRight(f, "\n") }

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.entry.Errorf(trim(f), v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.entry.Warnf(trim(f), v...) }

// Infof logs at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.entry.Debugf(trim(f), v...) }

// Debugf logs at trace level
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.entry.Tracef(trim(f), v...) }
