package consent

import (
	"time"

	"interview-copilot-be/internal/entity"
)

const (
	ReasonSessionNotActive = "session_not_active"
	ReasonConsentPending   = "consent_pending"
	ReasonConsentRevoked   = "consent_revoked"
	ReasonConsentExpired   = "consent_expired"
	ReasonBeforeGrant      = "consent_not_yet_granted"
)

// maxAuditEntries bounds the audit trail kept inside session metadata.
const maxAuditEntries = 20

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckIngestConsent evaluates the session status before the consent value:
// an inactive session is rejected whatever its consent says.
func CheckIngestConsent(session *entity.CopilotSession) Decision {
	if session == nil || session.Status != entity.CopilotSessionStatusActive {
		return Decision{Allowed: false, Reason: ReasonSessionNotActive}
	}

	switch session.Metadata.Consent.Status.Normalize() {
	case entity.ConsentStatusGranted:
		return Decision{Allowed: true}
	case entity.ConsentStatusRevoked:
		return Decision{Allowed: false, Reason: ReasonConsentRevoked}
	case entity.ConsentStatusExpired:
		return Decision{Allowed: false, Reason: ReasonConsentExpired}
	default:
		return Decision{Allowed: false, Reason: ReasonConsentPending}
	}
}

// CheckConsentAt decides whether an action stamped at actionAt was covered
// by consent. Consent covers [granted_at, revoked_at): the revocation
// timestamp wins over the stored status, so an action at or after revoked_at
// is unconsented even if the status still says granted, and an action before
// revoked_at stays consented after the status moved to revoked. Session
// status is not considered here.
func CheckConsentAt(session *entity.CopilotSession, actionAt time.Time) Decision {
	if session == nil {
		return Decision{Allowed: false, Reason: ReasonConsentPending}
	}
	c := session.Metadata.Consent
	status := c.Status.Normalize()

	switch status {
	case entity.ConsentStatusGranted:
	case entity.ConsentStatusRevoked, entity.ConsentStatusExpired:
		if c.GrantedAt == nil {
			return Decision{Allowed: false, Reason: closedReason(status)}
		}
	default:
		return Decision{Allowed: false, Reason: ReasonConsentPending}
	}

	if c.GrantedAt != nil && actionAt.Before(*c.GrantedAt) {
		return Decision{Allowed: false, Reason: ReasonBeforeGrant}
	}
	if c.RevokedAt != nil && !actionAt.Before(*c.RevokedAt) {
		return Decision{Allowed: false, Reason: closedReason(status)}
	}
	return Decision{Allowed: true}
}

// IsConsentValidAt is CheckConsentAt without the reason.
func IsConsentValidAt(session *entity.CopilotSession, actionAt time.Time) bool {
	return CheckConsentAt(session, actionAt).Allowed
}

func closedReason(status entity.ConsentStatus) string {
	if status == entity.ConsentStatusExpired {
		return ReasonConsentExpired
	}
	return ReasonConsentRevoked
}

// Grant returns a copy of meta with consent granted at at. Unrelated keys are
// preserved and a previous revocation is cleared.
func Grant(meta entity.SessionMetadata, at time.Time) entity.SessionMetadata {
	out := meta.Clone()
	grantedAt := at
	out.Consent.Status = entity.ConsentStatusGranted
	out.Consent.GrantedAt = &grantedAt
	out.Consent.RevokedAt = nil
	out.Consent.Audit = appendAudit(out.Consent.Audit, entity.ConsentStatusGranted, at)
	return out
}

// Revoke returns a copy of meta with consent revoked at at. Revoking twice
// keeps the earliest revocation instant.
func Revoke(meta entity.SessionMetadata, at time.Time) entity.SessionMetadata {
	return closeConsent(meta, entity.ConsentStatusRevoked, at)
}

// Expire marks consent as expired, used when the session itself expires.
func Expire(meta entity.SessionMetadata, at time.Time) entity.SessionMetadata {
	return closeConsent(meta, entity.ConsentStatusExpired, at)
}

func closeConsent(meta entity.SessionMetadata, status entity.ConsentStatus, at time.Time) entity.SessionMetadata {
	out := meta.Clone()
	closedAt := at
	if out.Consent.RevokedAt != nil && out.Consent.RevokedAt.Before(at) {
		closedAt = *out.Consent.RevokedAt
	}
	out.Consent.Status = status
	out.Consent.RevokedAt = &closedAt
	out.Consent.Audit = appendAudit(out.Consent.Audit, status, at)
	return out
}

func appendAudit(audit []entity.ConsentAuditEntry, status entity.ConsentStatus, at time.Time) []entity.ConsentAuditEntry {
	audit = append(audit, entity.ConsentAuditEntry{Status: status, At: at})
	if len(audit) > maxAuditEntries {
		audit = audit[len(audit)-maxAuditEntries:]
	}
	return audit
}
