package models

import (
	"fmt"
	"time"
)

// StagePhase is the ingestion state of one (session, dataset kind) pair.
type StagePhase string

const (
	PhaseEmpty     StagePhase = "empty"
	PhaseStaged    StagePhase = "staged"
	PhaseCommitted StagePhase = "committed"
)

// StageEvent drives a StagePhase transition.
type StageEvent string

const (
	EventUpload StageEvent = "upload"
	EventCommit StageEvent = "commit"
	EventExpire StageEvent = "expire" // staged data swept or missing
	EventReset  StageEvent = "reset"
)

var stageTransitions = map[StagePhase]map[StageEvent]StagePhase{
	PhaseEmpty: {
		EventUpload: PhaseStaged,
		EventReset:  PhaseEmpty,
		EventExpire: PhaseEmpty,
	},
	PhaseStaged: {
		EventUpload: PhaseStaged,
		EventCommit: PhaseCommitted,
		EventExpire: PhaseEmpty,
		EventReset:  PhaseStaged,
	},
	PhaseCommitted: {
		EventUpload: PhaseStaged,
		EventReset:  PhaseEmpty,
	},
}

// NextPhase returns the phase reached from `from` on event, or an error
// when the event is not allowed in that phase.
func NextPhase(from StagePhase, event StageEvent) (StagePhase, error) {
	if from == "" {
		from = PhaseEmpty
	}
	to, ok := stageTransitions[from][event]
	if !ok {
		return from, fmt.Errorf("event %q not allowed in phase %q", event, from)
	}
	return to, nil
}

// UploadStatus records, per kind, whether a dataset was committed in this session.
type UploadStatus map[DatasetKind]bool

// NewUploadStatus returns a status with every kind set to false.
func NewUploadStatus() UploadStatus {
	status := make(UploadStatus, len(AllDatasetKinds()))
	for _, k := range AllDatasetKinds() {
		status[k] = false
	}
	return status
}

// DatasetSession is the per-kind slice of a session.
type DatasetSession struct {
	Phase    StagePhase `json:"phase"`
	Handle   string     `json:"handle,omitempty"`
	Columns  []string   `json:"columns,omitempty"`
	StagedAt time.Time  `json:"staged_at,omitempty"`
}

// SessionState is the server-side state kept for one browser session.
type SessionState struct {
	UploadStatus UploadStatus                    `json:"upload_status"`
	Datasets     map[DatasetKind]*DatasetSession `json:"datasets"`
}

// NewSessionState returns the state of a session that has not interacted yet.
func NewSessionState() *SessionState {
	return &SessionState{
		UploadStatus: NewUploadStatus(),
		Datasets:     make(map[DatasetKind]*DatasetSession),
	}
}

// Normalize fills in missing maps and status entries, e.g. after decoding older state.
func (s *SessionState) Normalize() {
	if s.UploadStatus == nil {
		s.UploadStatus = NewUploadStatus()
	}
	for _, k := range AllDatasetKinds() {
		if _, ok := s.UploadStatus[k]; !ok {
			s.UploadStatus[k] = false
		}
	}
	if s.Datasets == nil {
		s.Datasets = make(map[DatasetKind]*DatasetSession)
	}
}

// Dataset returns the per-kind state, creating an Empty entry if needed.
func (s *SessionState) Dataset(kind DatasetKind) *DatasetSession {
	s.Normalize()
	ds, ok := s.Datasets[kind]
	if !ok || ds == nil {
		ds = &DatasetSession{Phase: PhaseEmpty}
		s.Datasets[kind] = ds
	}
	if ds.Phase == "" {
		ds.Phase = PhaseEmpty
	}
	return ds
}

// Phase returns the current phase for kind without mutating the state.
func (s *SessionState) Phase(kind DatasetKind) StagePhase {
	if s == nil || s.Datasets == nil {
		return PhaseEmpty
	}
	ds, ok := s.Datasets[kind]
	if !ok || ds == nil || ds.Phase == "" {
		return PhaseEmpty
	}
	return ds.Phase
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return NewSessionState()
	}
	out := &SessionState{
		UploadStatus: make(UploadStatus, len(s.UploadStatus)),
		Datasets:     make(map[DatasetKind]*DatasetSession, len(s.Datasets)),
	}
	for k, v := range s.UploadStatus {
		out.UploadStatus[k] = v
	}
	for k, ds := range s.Datasets {
		if ds == nil {
			continue
		}
		cp := *ds
		cp.Columns = append([]string(nil), ds.Columns...)
		out.Datasets[k] = &cp
	}
	out.Normalize()
	return out
}
