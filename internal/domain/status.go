package domain

import "time"

// StatusKind tags an EngineStatus.
type StatusKind int

const (
	StatusNotStarted StatusKind = iota
	StatusRunning
	StatusFinished
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress is a live snapshot of a running recovery engine.
type Progress struct {
	// Speed is measured in hashes per second.
	Speed float64 `json:"speed"`

	// Percent is in [0,100].
	Percent float64 `json:"percent"`

	// Guesses counts successfully recovered secrets so far.
	Guesses int `json:"guesses"`

	ETA time.Time `json:"eta,omitzero"`
}

// EngineStatus is the tagged result of a status query. Progress is only
// meaningful for StatusRunning; Err only for StatusError.
type EngineStatus struct {
	Kind     StatusKind
	Progress Progress
	Err      error
}

func NotStarted() EngineStatus            { return EngineStatus{Kind: StatusNotStarted} }
func Running(p Progress) EngineStatus     { return EngineStatus{Kind: StatusRunning, Progress: p} }
func Finished() EngineStatus              { return EngineStatus{Kind: StatusFinished} }
func StatusFailed(err error) EngineStatus { return EngineStatus{Kind: StatusError, Err: err} }

// StatusSnapshot is the persisted view of the active audit's engine.
type StatusSnapshot struct {
	AuditID    string    `json:"audit_id"`
	State      State     `json:"state"`
	Progress   Progress  `json:"progress"`
	CapturedAt time.Time `json:"captured_at"`
}
