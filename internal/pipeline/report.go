package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/renameio/v2"

	"github.com/backmassage/sizefit/internal/failure"
)

// ReportEntry is one request's line in the JSON report.
type ReportEntry struct {
	Input     string       `json:"input"`
	Output    string       `json:"output,omitempty"`
	Result    *Result      `json:"result,omitempty"`
	ErrorKind failure.Kind `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Report is the document written by --report.
type Report struct {
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Stats    RunStats      `json:"stats"`
	Entries  []ReportEntry `json:"entries"`
}

func newReportEntry(req Request, res *Result, err error) ReportEntry {
	e := ReportEntry{Input: req.Input, Output: req.Output, Result: res}
	if res != nil {
		e.Output = res.Output
	}
	if err != nil {
		e.ErrorKind = failure.KindOf(err)
		e.Error = err.Error()
	}
	return e
}

// WriteReport writes the run report to path atomically.
func WriteReport(path string, started time.Time, stats RunStats, entries []ReportEntry) error {
	data, err := json.MarshalIndent(Report{
		Started:  started,
		Finished: time.Now(),
		Stats:    stats,
		Entries:  entries,
	}, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o644)
}
