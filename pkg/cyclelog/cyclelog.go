// Package cyclelog buffers the detail lines of one refresh cycle.
//
// While a cycle runs its lines are kept in memory. A failed cycle replays
// them followed by the error; a successful one prints a single summary line
// and drops the rest. One goroutine owns the buffers and is fed through a
// channel, so no mutexes are involved.
package cyclelog

import (
	"strings"

	"github.com/sirupsen/logrus"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actSync
)

type cmd struct {
	act     action
	cycleID string
	message string
	err     error
	done    chan struct{}
}

// Log is a set of per-cycle buffers.
type Log struct {
	entry *logrus.Entry
	ch    chan cmd
}

// New starts the buffer goroutine writing to entry.
func New(entry *logrus.Entry) *Log {
	l := &Log{entry: entry, ch: make(chan cmd, 128)}
	go l.run()
	return l
}

// Begin starts buffering for cycleID.
func (l *Log) Begin(cycleID string) { l.ch <- cmd{act: actBegin, cycleID: cycleID} }

// Append adds a detail line. Without a buffer the line is logged at once.
func (l *Log) Append(cycleID, msg string) {
	l.ch <- cmd{act: actAppend, cycleID: cycleID, message: msg}
}

// Success drops the buffer and logs summary.
func (l *Log) Success(cycleID, summary string) {
	l.ch <- cmd{act: actSuccess, cycleID: cycleID, message: summary}
}

// FlushError replays the buffer and then the error.
func (l *Log) FlushError(cycleID string, err error) {
	l.ch <- cmd{act: actFlushErr, cycleID: cycleID, err: err}
}

// Sync returns once every earlier command has been written.
func (l *Log) Sync() {
	done := make(chan struct{})
	l.ch <- cmd{act: actSync, done: done}
	<-done
}

func (l *Log) run() {
	buffers := make(map[string]*strings.Builder)

	for c := range l.ch {
		entry := l.entry.WithField("cycle", short(c.cycleID))
		switch c.act {
		case actBegin:
			buffers[c.cycleID] = &strings.Builder{}

		case actAppend:
			if b := buffers[c.cycleID]; b != nil {
				b.WriteString(c.message)
				b.WriteByte('\n')
			} else {
				entry.Info(c.message)
			}

		case actSuccess:
			delete(buffers, c.cycleID)
			entry.Info(c.message)

		case actFlushErr:
			if b := buffers[c.cycleID]; b != nil {
				for _, ln := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
					if ln != "" {
						entry.Warn(ln)
					}
				}
				delete(buffers, c.cycleID)
			}
			entry.Error(c.err)

		case actSync:
			close(c.done)
		}
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
