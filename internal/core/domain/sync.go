package domain

import "time"

// SyncPhase names a protocol sync phase.
type SyncPhase string

const (
	PhaseAttendees SyncPhase = "attendees"
	PhaseSpeakers  SyncPhase = "speakers"
	PhaseSessions  SyncPhase = "sessions"
)

// PhaseReport is the outcome of one protocol sync phase.
type PhaseReport struct {
	Phase   SyncPhase `json:"phase"`
	Created int       `json:"created"`
	Failed  int       `json:"failed"`
	Error   string    `json:"error,omitempty"`
}

// SyncReport summarizes a protocol sync run.
type SyncReport struct {
	RunID      string        `json:"run_id"`
	ConfigID   string        `json:"config_id,omitempty"`
	OwnerID    string        `json:"owner_id"`
	Phases     []PhaseReport `json:"phases"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Phase returns the report for p, if that phase ran.
func (r SyncReport) Phase(p SyncPhase) (PhaseReport, bool) {
	for _, ph := range r.Phases {
		if ph.Phase == p {
			return ph, true
		}
	}
	return PhaseReport{}, false
}
