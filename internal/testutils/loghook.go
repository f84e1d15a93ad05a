package testutils

import (
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// NewCapturingLogger returns a debug-level logger that discards output and records entries.
func NewCapturingLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// EntriesWithMessage returns the captured entries at level whose message equals msg.
func EntriesWithMessage(hook *logtest.Hook, level logrus.Level, msg string) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			out = append(out, *e)
		}
	}
	return out
}
