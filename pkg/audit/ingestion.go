// Package audit records changes to the stored org chart data as structured
// log events, separate from operational logs, for later review.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventType categorizes data change events for filtering.
type EventType string

const (
	// EventBatchCommitted is logged when a mapped dataset is written to the store.
	EventBatchCommitted EventType = "batch_committed"
	// EventBatchRejected is logged when a mapped dataset fails validation or the write.
	EventBatchRejected EventType = "batch_rejected"
	// EventDataReset is logged when every collection is emptied.
	EventDataReset EventType = "data_reset"
	// EventSuspiciousValue is logged for a committed value that looks like an injection attempt.
	EventSuspiciousValue EventType = "suspicious_value"
)

// Event is one auditable data change.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  EventType `json:"event_type"`
	SessionRef string    `json:"session_ref"`
	Kind       string    `json:"kind,omitempty"`
	Details    any       `json:"details,omitempty"`
	Severity   string    `json:"severity"` // info, warning, critical
}

// CommitDetails describes a committed batch.
type CommitDetails struct {
	Records int64 `json:"records"`
}

// RejectionDetails describes a batch that was not stored.
type RejectionDetails struct {
	Reason string `json:"reason"`
	Row    *int   `json:"row,omitempty"`
	Field  string `json:"field,omitempty"`
}

// SuspiciousValueDetails locates a flagged value. The value itself is not
// logged since cells carry personal data.
type SuspiciousValueDetails struct {
	Row         int    `json:"row"`
	Field       string `json:"field"`
	Reason      string `json:"reason"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Auditor writes audit events. A nil *Auditor discards them.
type Auditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditor creates an auditor logging under the "audit" namespace.
func NewAuditor(logger *zap.Logger) *Auditor {
	return &Auditor{logger: logger.Named("audit"), now: time.Now}
}

// SessionRef is a short stable digest of a session id; raw ids are never logged.
func SessionRef(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}

// LogCommit records a stored batch.
func (a *Auditor) LogCommit(sessionID, kind string, records int64) {
	if a == nil {
		return
	}
	event := a.event(EventBatchCommitted, sessionID, kind, CommitDetails{Records: records}, "info")
	a.logger.Info("Batch committed",
		zap.String("event_json", marshal(event)),
		zap.String("session_ref", event.SessionRef),
		zap.String("kind", kind),
		zap.Int64("records", records),
	)
}

// LogRejection records a batch that was refused. Rejections are user errors,
// so they are logged at WARN.
func (a *Auditor) LogRejection(sessionID, kind string, details RejectionDetails) {
	if a == nil {
		return
	}
	event := a.event(EventBatchRejected, sessionID, kind, details, "warning")
	a.logger.Warn("Batch rejected",
		zap.String("event_json", marshal(event)),
		zap.String("session_ref", event.SessionRef),
		zap.String("kind", kind),
		zap.String("reason", details.Reason),
	)
}

// LogReset records that every collection was emptied.
func (a *Auditor) LogReset(sessionID string) {
	if a == nil {
		return
	}
	event := a.event(EventDataReset, sessionID, "", nil, "warning")
	a.logger.Warn("Org chart data reset",
		zap.String("event_json", marshal(event)),
		zap.String("session_ref", event.SessionRef),
	)
}

// LogSuspiciousValue records a flagged value at ERROR level for alerting.
func (a *Auditor) LogSuspiciousValue(sessionID, kind string, details SuspiciousValueDetails) {
	if a == nil {
		return
	}
	event := a.event(EventSuspiciousValue, sessionID, kind, details, "critical")
	a.logger.Error("Suspicious value in upload",
		zap.String("event_json", marshal(event)),
		zap.String("session_ref", event.SessionRef),
		zap.String("kind", kind),
		zap.Int("row", details.Row),
		zap.String("field", details.Field),
		zap.String("reason", details.Reason),
		zap.String("fingerprint", details.Fingerprint),
	)
}

func (a *Auditor) event(eventType EventType, sessionID, kind string, details any, severity string) Event {
	return Event{
		Timestamp:  a.now().UTC(),
		EventType:  eventType,
		SessionRef: SessionRef(sessionID),
		Kind:       kind,
		Details:    details,
		Severity:   severity,
	}
}

// marshal ignores the error: every Event field is a plain value.
func marshal(event Event) string {
	b, _ := json.Marshal(event)
	return string(b)
}
