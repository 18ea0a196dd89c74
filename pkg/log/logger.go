package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds the process logger: text output with full timestamps, defaulting to INFO.
// An unparsable level is reported back so the caller can warn once the logger exists.
func New(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	logger.SetLevel(logrus.InfoLevel)
	if level == "" {
		return logger, nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logger, err
	}
	logger.SetLevel(parsed)
	return logger, nil
}

// Discard returns an entry that drops everything, for library callers that pass no logger
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
