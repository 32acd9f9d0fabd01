package worker

import "github.com/sirupsen/logrus"

// NewLogger builds a structured per-worker logger, grounded on the
// retrieved corpus's logrus usage (nabbar-golib, marmos91-dittofs's
// internal/logger). Every §7 error kind marked "log" goes through the
// returned entry's Warn/Error methods.
func NewLogger(workerID int, level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log.WithField("worker", workerID)
}
