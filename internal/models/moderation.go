package models

import "time"

// ModRecord is a ban or mute. A non-permanent record is inert once ExpiresAt
// has passed; inert records are purged on the next check, not by a timer.
type ModRecord struct {
	TargetID  string    `json:"target_id"`
	Reason    string    `json:"reason"`
	IssuedBy  string    `json:"issued_by"`
	Permanent bool      `json:"permanent"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the record still applies at now.
func (m *ModRecord) Active(now time.Time) bool {
	return m.Permanent || now.Before(m.ExpiresAt)
}

// Remaining returns the time left on a temporary record, zero when permanent
// or already expired.
func (m *ModRecord) Remaining(now time.Time) time.Duration {
	if m.Permanent || !now.Before(m.ExpiresAt) {
		return 0
	}
	return m.ExpiresAt.Sub(now)
}

// Warning is one strike against an identity. Three unexpired strikes trigger
// an automatic temporary mute and reset the accumulator.
type Warning struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	IssuedBy  string    `json:"issued_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Report statuses.
const (
	ReportPending   = "pending"
	ReportHandled   = "handled"
	ReportDismissed = "dismissed"
)

// Report is a user-filed complaint reviewed through the admin surface.
type Report struct {
	ID         string    `json:"id"`
	ReporterID string    `json:"reporter_id"`
	TargetID   string    `json:"target_id"`
	Reason     string    `json:"reason"`
	MessageID  string    `json:"message_id,omitempty"`
	Status     string    `json:"status"`
	HandledBy  string    `json:"handled_by,omitempty"`
	Action     string    `json:"action,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	HandledAt  time.Time `json:"handled_at,omitempty"`
}
