// Package metrics builds the tally scope the dashboard reports into. There is
// no metrics backend in this deployment, so the reporter writes each flushed
// value as a logrus debug line.
package metrics

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

var log = logrus.WithField("prefix", "metrics")

// Metric names shared by the dashboard and its tests.
const (
	RefreshSuccess        = "refresh.success"
	RefreshTransportError = "refresh.transport_error"
	RefreshEmpty          = "refresh.empty"
	Markers               = "markers"
	Fetch                 = "fetch"
)

// NewScope returns a root scope flushing every interval (one minute when
// interval is not positive). The closer stops the flush loop.
func NewScope(prefix string, interval time.Duration) (tally.Scope, io.Closer) {
	if interval <= 0 {
		interval = time.Minute
	}
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix:    prefix,
		Separator: ".",
		Reporter:  NewLogReporter(log),
	}, interval)
}

type capabilities struct{}

func (capabilities) Reporting() bool { return true }
func (capabilities) Tagging() bool   { return true }

// LogReporter is a tally.StatsReporter backed by a logrus entry.
type LogReporter struct {
	entry *logrus.Entry
}

// NewLogReporter wraps entry.
func NewLogReporter(entry *logrus.Entry) *LogReporter {
	return &LogReporter{entry: entry}
}

func (r *LogReporter) fields(name string, tags map[string]string) *logrus.Entry {
	e := r.entry.WithField("metric", name)
	for k, v := range tags {
		e = e.WithField(k, v)
	}
	return e
}

func (r *LogReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.fields(name, tags).Debugf("counter %d", value)
}

func (r *LogReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.fields(name, tags).Debugf("gauge %g", value)
}

func (r *LogReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.fields(name, tags).Debugf("timer %s", interval)
}

func (r *LogReporter) ReportHistogramValueSamples(name string, tags map[string]string,
	_ tally.Buckets, lower, upper float64, samples int64) {
	r.fields(name, tags).Debugf("histogram [%g,%g) %d", lower, upper, samples)
}

func (r *LogReporter) ReportHistogramDurationSamples(name string, tags map[string]string,
	_ tally.Buckets, lower, upper time.Duration, samples int64) {
	r.fields(name, tags).Debugf("histogram [%s,%s) %d", lower, upper, samples)
}

func (r *LogReporter) Capabilities() tally.Capabilities { return capabilities{} }

func (r *LogReporter) Flush() {}
