package domain

import "time"

// ErrorKind classifies a delivery failure. Transient kinds are retried up
// to the item's budget; permanent kinds are not, and repeated permanent
// kinds invalidate the outbox.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection"
	ErrKindAuth       ErrorKind = "auth"
	ErrKindTLS        ErrorKind = "tls"
	ErrKindHardBounce ErrorKind = "hard_bounce"
)

// Transient reports whether the failure kind is worth retrying.
func (k ErrorKind) Transient() bool {
	return k == ErrKindTimeout || k == ErrKindConnection
}

// InvalidatesOutbox reports whether repeated failures of this kind should
// mark the sending outbox invalid. Hard bounces are the recipient's fault,
// not the outbox's.
func (k ErrorKind) InvalidatesOutbox() bool {
	return k == ErrKindAuth || k == ErrKindTLS
}

// SendOutcome is the result of one delivery attempt.
type SendOutcome struct {
	OK        bool      `json:"ok"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
