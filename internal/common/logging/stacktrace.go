package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err and, if anything in its chain carries one, the innermost pkg/errors stack trace to entry.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		entry = entry.WithField(Stacktrace, stack)
	}
	return entry
}

// ExtractStack returns the stack trace recorded closest to where err was created, or nil if there is none.
func ExtractStack(err error) errors.StackTrace {
	var stack errors.StackTrace
	for ; err != nil; err = errors.Unwrap(err) {
		if tracer, ok := err.(stackTracer); ok {
			stack = tracer.StackTrace()
		}
	}
	return stack
}
