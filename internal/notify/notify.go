// Package notify delivers fire-and-forget user-facing messages.
package notify

import "github.com/sirupsen/logrus"

// Notifier is the notification sink contract
type Notifier interface {
	Notify(message string)
}

// Log is a notifier that writes messages to the application log
type Log struct {
	log *logrus.Entry
}

// NewLog creates a log-backed notifier
func NewLog() *Log {
	return &Log{log: logrus.WithField("component", "notify")}
}

// Notify logs the message
func (l *Log) Notify(message string) {
	l.log.Warn(message)
}

// Func adapts a function to the Notifier interface
type Func func(message string)

// Notify calls the function
func (f Func) Notify(message string) { f(message) }
