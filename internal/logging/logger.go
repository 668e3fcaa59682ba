package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Both loggers write to stderr: stdout carries rendered solutions and must
// stay byte-identical across dispatch modes.
var logger *logrus.Logger
var dispatchLogger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
	})
	logger.SetLevel(logrus.InfoLevel)

	dispatchLogger = logrus.New()
	dispatchLogger.SetOutput(os.Stderr)
	dispatchLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "dispatch_msg",
		},
	})
	dispatchLogger.SetLevel(logrus.WarnLevel)
}

func GetLogger() *logrus.Logger {
	return logger
}

// GetDispatchLogger returns the logger used by the dispatcher, the pools and
// the remote worker.
func GetDispatchLogger() *logrus.Logger {
	return dispatchLogger
}

// SetLogLevel sets the level of both loggers.
func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)
	dispatchLogger.SetLevel(logLevel)
	return nil
}

// SetDispatchLogLevel sets the level of the dispatch logger only.
func SetDispatchLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	dispatchLogger.SetLevel(logLevel)
	return nil
}

func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	dispatchLogger.SetOutput(w)
}

func SetFormatter(formatter logrus.Formatter) {
	logger.SetFormatter(formatter)
}
