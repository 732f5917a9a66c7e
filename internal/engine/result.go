package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned by Start while another job owns the runner or the output path.
	ErrBusy      = errors.New("encoder busy")
	ErrCancelled = errors.New("encode cancelled")
)

type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SpawnError means the encoder process could not be started at all.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// EncodeError describes an encoder run that ended with a failure.
type EncodeError struct {
	ExitCode int
	Reason   string
}

func (e *EncodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("encoder exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.ExitCode, e.Reason)
}

type Stats struct {
	Elapsed    time.Duration `json:"elapsed"`
	PeakRSS    uint64        `json:"peak_rss"`
	CPUPercent float64       `json:"cpu_percent"`
	Samples    int           `json:"samples"`
}

// Result is the terminal outcome of a job.
type Result struct {
	JobID      string `json:"job_id"`
	State      State  `json:"state"`
	OutputPath string `json:"output_path,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ExitCode   int    `json:"exit_code"`
	Stats      Stats  `json:"stats"`
}

func (r Result) Err() error {
	switch r.State {
	case Completed:
		return nil
	case Cancelled:
		return ErrCancelled
	default:
		return &EncodeError{ExitCode: r.ExitCode, Reason: r.Reason}
	}
}
