// Package log wraps logrus with the handful of helpers the rest of this
// module calls into, so every package logs through one seam instead of
// importing logrus directly.
package log

import "github.com/sirupsen/logrus"

// WarnLevel is the warn log level.
var WarnLevel = logrus.WarnLevel

// InfoLevel is the info log level.
var InfoLevel = logrus.InfoLevel

// DebugLevel is the debug log level.
var DebugLevel = logrus.DebugLevel

// ErrorLevel is the error log level.
var ErrorLevel = logrus.ErrorLevel

// FatalLevel is the fatal log level.
var FatalLevel = logrus.FatalLevel

// PanicLevel is the panic log level.
var PanicLevel = logrus.PanicLevel

// TextFormatter aliases logrus's text formatter.
type TextFormatter = logrus.TextFormatter

// Level aliases logrus's level type.
type Level = logrus.Level

// CheckErr logs err at level if it is non-nil.
func CheckErr(level logrus.Level, err error) {
	if err != nil {
		Log(level, err)
	}
}

// Log records messages at level.
func Log(level logrus.Level, messages ...interface{}) {
	switch level {
	case logrus.InfoLevel:
		logrus.Info(messages...)
	case logrus.WarnLevel:
		logrus.Warn(messages...)
	case logrus.ErrorLevel:
		logrus.Error(messages...)
	case logrus.FatalLevel:
		logrus.Fatal(messages...)
	case logrus.PanicLevel:
		logrus.Panic(messages...)
	case logrus.DebugLevel:
		fallthrough
	default:
		logrus.Debug(messages...)
	}
}

// SetFormatter sets logrus's formatter, e.g. &logrus.JSONFormatter{}.
func SetFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

// SetLevel sets the minimum level that gets logged.
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// WithField attaches one field to a log entry.
func WithField(key string, value interface{}) *logrus.Entry {
	return logrus.WithField(key, value)
}

// WithFields attaches several fields to a log entry.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logrus.WithFields(fields)
}

// WithError attaches err under the conventional "error" field.
func WithError(err error) *logrus.Entry {
	return logrus.WithError(err)
}

// Info logs at info level.
func Info(messages ...interface{}) {
	logrus.Info(messages...)
}

// Infof formats and logs at info level.
func Infof(format string, messages ...interface{}) {
	logrus.Infof(format, messages...)
}

// Warn logs at warn level.
func Warn(messages ...interface{}) {
	logrus.Warn(messages...)
}

// Warnf formats and logs at warn level.
func Warnf(format string, messages ...interface{}) {
	logrus.Warnf(format, messages...)
}

// Error logs at error level.
func Error(messages ...interface{}) {
	logrus.Error(messages...)
}

// Errorf formats and logs at error level.
func Errorf(format string, messages ...interface{}) {
	logrus.Errorf(format, messages...)
}

// Fatal logs at fatal level, then exits.
func Fatal(messages ...interface{}) {
	logrus.Fatal(messages...)
}

// Debug logs at debug level.
func Debug(messages ...interface{}) {
	logrus.Debug(messages...)
}

// Debugf formats and logs at debug level.
func Debugf(format string, messages ...interface{}) {
	logrus.Debugf(format, messages...)
}
