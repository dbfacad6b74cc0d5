package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelWarning
	LevelBroken
	LevelCount
)

// Report is a single call made against a Recorder.
type Report struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory, it is meant to be
// handed to components under test so their reporting can be asserted on.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Report{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Report{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Report{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Report{Level: LevelCount, ID: id, Count: count})
}

// Reports returns a copy of every report with the given level.
func (r *Recorder) Reports(level Level) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Report
	for _, report := range r.reports {
		if report.Level == level {
			out = append(out, report)
		}
	}
	return out
}

// Has returns true if a report with the given level has an id ending in `suffix`.
func (r *Recorder) Has(level Level, suffix string) bool {
	for _, report := range r.Reports(level) {
		if strings.HasSuffix(report.ID, suffix) {
			return true
		}
	}
	return false
}
