package domain

import "time"

// RefreshToken representa un refresh token emitido. Nunca guarda el token
// crudo, solo su hash.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	ReplacedBy *string    `json:"replaced_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsActive indica si el registro puede respaldar un refresh.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
