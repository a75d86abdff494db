package domain

import "time"

// PendingRegistration es el registro efimero de un alta en curso, clavado por
// email normalizado en el store efimero. Desaparece solo al expirar su TTL.
type PendingRegistration struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CodeHash     string    `json:"code_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Attempts     int       `json:"attempts"`
	Resends      int       `json:"resends"`
}
