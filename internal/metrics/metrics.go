// Package metrics records job stage timings and row counts through a
// pluggable backend. The default backend discards everything, so callers
// never need to check whether metrics are configured.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveDuration(name string, seconds float64, labels Labels)
	// Flush pushes buffered metrics, for backends that push.
	Flush() error
}

// Metric names.
const (
	StageTotal    = "avroetl_stage_total"
	StageDuration = "avroetl_stage_duration_seconds"
	RecordsTotal  = "avroetl_records_total"
	RunsTotal     = "avroetl_runs_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)      {}
func (nopBackend) ObserveDuration(string, float64, Labels) {}
func (nopBackend) Flush() error                            { return nil }

var backend Backend = nopBackend{}

// SetBackend installs b. Nil is ignored.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the installed backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStage counts one execution of a job stage and its duration.
func RecordStage(job, stage string, err error, d time.Duration) {
	lbls := Labels{"job": job, "stage": stage, "status": status(err)}
	backend.IncCounter(StageTotal, 1, lbls)
	backend.ObserveDuration(StageDuration, d.Seconds(), lbls)
}

// RecordRows adds delta to the record counter of the given kind
// (decoded, flattened, written).
func RecordRows(job, kind string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordRun counts a finished run.
func RecordRun(job string, err error) {
	backend.IncCounter(RunsTotal, 1, Labels{"job": job, "status": status(err)})
}
