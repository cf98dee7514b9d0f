// Package logging wires the engine's diagnostic output through logrus
// instead of the teacher's bare fmt.Printf "[BufferPool] ..." lines,
// keeping the same tags as structured fields.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Entry is a structured log entry, as returned by Component.
type Entry = logrus.Entry

var (
	once sync.Once
	log  *logrus.Logger
)

// L returns the process-wide logger, created on first use with a
// text formatter and level read from SLOTDB_LOG_LEVEL (default "info").
func L() *logrus.Logger {
	once.Do(func() {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		level, err := logrus.ParseLevel(os.Getenv("SLOTDB_LOG_LEVEL"))
		if err != nil {
			level = logrus.InfoLevel
		}
		log.SetLevel(level)
	})
	return log
}

// Component returns a logger scoped to one engine component, e.g.
// Component("bufferpool") logs with component=bufferpool on every entry.
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}
