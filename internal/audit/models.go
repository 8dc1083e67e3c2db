package audit

import (
	"time"

	id "opsdash/pkg/domain"
)

// Kind names an auditable action.
type Kind string

const (
	KindLogin                  Kind = "LOGIN"
	KindLogout                 Kind = "LOGOUT"
	KindTokenRefreshed         Kind = "TOKEN_REFRESHED"
	KindPasswordResetRequested Kind = "PASSWORD_RESET_REQUESTED"
	KindRateLimitExceeded      Kind = "RATE_LIMIT_EXCEEDED"

	// Significant kinds are mirrored to the recent-events feed and published live.
	KindFailedLogin        Kind = "FAILED_LOGIN"
	KindMFAFailed          Kind = "MFA_FAILED"
	KindUnauthorizedAccess Kind = "UNAUTHORIZED_ACCESS"
	KindRoleChanged        Kind = "ROLE_CHANGED"
	KindSecurityAlert      Kind = "SECURITY_ALERT"
)

var significant = map[Kind]struct{}{
	KindFailedLogin:        {},
	KindMFAFailed:          {},
	KindUnauthorizedAccess: {},
	KindRoleChanged:        {},
	KindSecurityAlert:      {},
}

// IsSignificant reports whether events of this kind get real-time admin visibility.
func (k Kind) IsSignificant() bool {
	_, ok := significant[k]
	return ok
}

// Event is an append-only audit record. A nil PrincipalID means the actor is unknown.
type Event struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	PrincipalID *id.PrincipalID `json:"principalId"`
	Details     map[string]any  `json:"details,omitempty"`
	ClientIP    string          `json:"clientIp,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
