package notify

import (
	"github.com/sirupsen/logrus"
)

// Notifier delivers a human-facing alert. Delivery is best effort: failures
// are logged by the implementation and never returned.
type Notifier interface {
	Notify(title, message string)
}

// Func adapts a function to Notifier.
type Func func(title, message string)

func (f Func) Notify(title, message string) { f(title, message) }

// Log writes notifications to the daemon log only.
type Log struct{}

func (Log) Notify(title, message string) {
	logrus.WithFields(logrus.Fields{
		"title":    title,
		"severity": "critical",
	}).Error(message)
}

// Multi fans a notification out to every member.
type Multi []Notifier

func (m Multi) Notify(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(title, message)
		}
	}
}
