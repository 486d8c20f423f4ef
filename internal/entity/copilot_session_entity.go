package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CopilotSessionStatus string

const (
	CopilotSessionStatusActive  CopilotSessionStatus = "active"
	CopilotSessionStatusStopped CopilotSessionStatus = "stopped"
	CopilotSessionStatusExpired CopilotSessionStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s CopilotSessionStatus) IsTerminal() bool {
	return s == CopilotSessionStatusStopped || s == CopilotSessionStatusExpired
}

// TerminalSessionStatuses lists the statuses bulk deletes are allowed to target.
var TerminalSessionStatuses = []CopilotSessionStatus{
	CopilotSessionStatusStopped,
	CopilotSessionStatusExpired,
}

type CopilotSession struct {
	Id              uuid.UUID
	UserId          uuid.UUID
	Status          CopilotSessionStatus
	Mode            string
	StartedAt       time.Time
	StoppedAt       *time.Time
	DurationSeconds int
	ConsumedMinutes int
	Metadata        SessionMetadata
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

type ConsentStatus string

const (
	ConsentStatusPending ConsentStatus = "pending"
	ConsentStatusGranted ConsentStatus = "granted"
	ConsentStatusRevoked ConsentStatus = "revoked"
	ConsentStatusExpired ConsentStatus = "expired"
)

// Normalize maps unknown or empty values to pending. Sessions created before
// consent tracking carry no status at all.
func (s ConsentStatus) Normalize() ConsentStatus {
	switch s {
	case ConsentStatusGranted, ConsentStatusRevoked, ConsentStatusExpired, ConsentStatusPending:
		return s
	default:
		return ConsentStatusPending
	}
}

type ConsentAuditEntry struct {
	Status ConsentStatus `json:"status"`
	At     time.Time     `json:"at"`
}

type ConsentState struct {
	Status    ConsentStatus       `json:"status"`
	GrantedAt *time.Time          `json:"granted_at,omitempty"`
	RevokedAt *time.Time          `json:"revoked_at,omitempty"`
	Audit     []ConsentAuditEntry `json:"audit,omitempty"`
}

type HeartbeatState struct {
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// Top-level keys of the metadata column.
const (
	MetadataKeyConsent   = "consent"
	MetadataKeyHeartbeat = "heartbeat"
)

// SessionMetadata is the typed view of the session's metadata column. Keys
// other than consent and heartbeat are carried through untouched in Extra.
type SessionMetadata struct {
	Consent   ConsentState
	Heartbeat HeartbeatState
	Extra     map[string]json.RawMessage
}

// Clone returns a copy that shares no mutable state with m.
func (m SessionMetadata) Clone() SessionMetadata {
	out := SessionMetadata{
		Consent:   m.Consent,
		Heartbeat: m.Heartbeat,
	}
	if m.Consent.Audit != nil {
		out.Consent.Audit = append([]ConsentAuditEntry(nil), m.Consent.Audit...)
	}
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func (m SessionMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[MetadataKeyConsent] = m.Consent
	out[MetadataKeyHeartbeat] = m.Heartbeat
	return json.Marshal(out)
}

// UnmarshalJSON never fails on a malformed sub-structure: a consent or
// heartbeat block that does not decode is replaced by its zero value and the
// consent status is normalized.
func (m *SessionMetadata) UnmarshalJSON(data []byte) error {
	*m = SessionMetadata{}

	var raw map[string]json.RawMessage
	if len(data) == 0 || string(data) == "null" {
		m.Consent.Status = ConsentStatusPending
		return nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		m.Consent.Status = ConsentStatusPending
		return nil
	}

	if v, ok := raw[MetadataKeyConsent]; ok {
		var consent ConsentState
		if err := json.Unmarshal(v, &consent); err == nil {
			m.Consent = consent
		}
		delete(raw, MetadataKeyConsent)
	}
	m.Consent.Status = m.Consent.Status.Normalize()

	if v, ok := raw[MetadataKeyHeartbeat]; ok {
		var hb HeartbeatState
		if err := json.Unmarshal(v, &hb); err == nil {
			m.Heartbeat = hb
		}
		delete(raw, MetadataKeyHeartbeat)
	}

	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
