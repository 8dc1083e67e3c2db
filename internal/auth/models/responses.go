package models

// Transport-layer response models. Keep domain behavior out of these.

// TokenResult is returned by /auth/login.
type TokenResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// AccessTokenResult is returned by /auth/refresh. The refresh assertion is not rotated.
type AccessTokenResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}

// PrincipalResult is the /auth/me payload.
type PrincipalResult struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// NewPrincipalResult shapes a principal for JSON output.
func NewPrincipalResult(p *Principal) PrincipalResult {
	return PrincipalResult{
		ID:        p.ID.String(),
		Email:     p.Email,
		Name:      p.Name,
		Role:      p.Role.String(),
		AvatarURL: p.AvatarURL,
	}
}

// MessageResult is a plain acknowledgement.
type MessageResult struct {
	Message string `json:"message"`
}
