package crypto

import (
	"crypto/rsa"

	"github.com/sirupsen/logrus"
)

// LoggerHelper carries the standard fields for crypto package log lines.
type LoggerHelper struct {
	fields logrus.Fields
}

// NewLogger creates a logger tagged with the calling function.
func NewLogger(function string) *LoggerHelper {
	return &LoggerHelper{
		fields: logrus.Fields{
			"function": function,
			"package":  "crypto",
		},
	}
}

// WithField adds a custom field to the logger
func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	l.fields[key] = value
	return l
}

// WithFields adds multiple custom fields to the logger
func (l *LoggerHelper) WithFields(fields logrus.Fields) *LoggerHelper {
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// WithError records an error and the operation that produced it.
func (l *LoggerHelper) WithError(err error, operation string) *LoggerHelper {
	l.fields["error"] = err.Error()
	l.fields["operation"] = operation
	return l
}

// Debug logs a debug message
func (l *LoggerHelper) Debug(message string) {
	logrus.WithFields(l.fields).Debug(message)
}

// Info logs an info message
func (l *LoggerHelper) Info(message string) {
	logrus.WithFields(l.fields).Info(message)
}

// Warn logs a warning message
func (l *LoggerHelper) Warn(message string) {
	logrus.WithFields(l.fields).Warn(message)
}

// Error logs an error message
func (l *LoggerHelper) Error(message string) {
	logrus.WithFields(l.fields).Error(message)
}

// KeyFields describes a public key for logging without exposing it.
func KeyFields(pub *rsa.PublicKey) logrus.Fields {
	bits := 0
	if pub != nil && pub.N != nil {
		bits = pub.N.BitLen()
	}
	return logrus.Fields{
		"key_fingerprint": Fingerprint(pub),
		"key_bits":        bits,
	}
}
