package domain

import "time"

// EmailVerificationToken es el registro durable de verificacion para usuarios
// ya creados pero sin email verificado. A diferencia del registro pendiente de
// registro, el agotamiento de intentos bloquea con locked_until en vez de
// borrar la fila.
type EmailVerificationToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CodeHash    string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsUsable indica si la fila puede aceptar un intento de verificacion.
func (t EmailVerificationToken) IsUsable(now time.Time) bool {
	if now.After(t.ExpiresAt) {
		return false
	}
	if t.LockedUntil != nil && now.Before(*t.LockedUntil) {
		return false
	}
	return true
}
