package app

import (
	"time"

	"photosort/internal/sorter"
)

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// NewRun creates the record of a sort invocation in the running state.
func NewRun(id string, mode sorter.Mode, inputRoot, outputRoot string, startedAt time.Time) *sorter.Run {
	return &sorter.Run{
		ID:         id,
		Mode:       mode,
		InputRoot:  inputRoot,
		OutputRoot: outputRoot,
		StartedAt:  startedAt,
		Status:     RunRunning,
	}
}

// FinishRun stores the outcome of a run: its summary (which may be partial
// when err is set), completion time and status.
func FinishRun(run *sorter.Run, summary *sorter.Summary, err error, finishedAt time.Time) {
	if summary != nil {
		run.Summary = *summary
	}
	run.FinishedAt = finishedAt
	run.Status = RunSuccess
	if err != nil {
		run.Status = RunError
	}
}
