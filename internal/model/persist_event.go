package model

const (
	PersistKindMessage  = "message"
	PersistKindAuditLog = "audit_log"
)

// PersistEvent is the queue payload consumed by the persist worker.
// Exactly one of Message or AuditLog is set, matching Kind.
type PersistEvent struct {
	Kind     string    `json:"kind"`
	Message  *Message  `json:"message,omitempty"`
	AuditLog *AuditLog `json:"audit_log,omitempty"`
}
