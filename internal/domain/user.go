package domain

import "time"

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Role            string     `json:"role"`
	Locale          string     `json:"locale,omitempty"`
	AuthProvider    string     `json:"auth_provider,omitempty"`
	AuthSubject     string     `json:"-"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsEmailVerified indica si el usuario ya probo la propiedad de su email.
func (u User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Sanitized devuelve una copia sin material de credenciales.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.AuthSubject = ""
	return u
}
