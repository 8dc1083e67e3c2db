package models

// Role is the fixed set of dashboard roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleUser
}

func (r Role) String() string {
	return string(r)
}

// ClientMetadata is the request context captured alongside a refresh row.
type ClientMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Device is a display label derived from the User-Agent, e.g. "Firefox on Linux".
	Device string `json:"device,omitempty"`
}

// IsEmpty returns true if no client metadata was captured.
func (c ClientMetadata) IsEmpty() bool {
	return c.IP == "" && c.UserAgent == "" && c.Device == ""
}
