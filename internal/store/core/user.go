// Package core define el contrato de persistencia de usuarios locales.
package core

import (
	"context"
	"time"
)

// User es el registro local que respalda a una identidad Office 365.
// Email es único (case-insensitive) y siempre se guarda en minúsculas.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserRepository lo implementan pg y memory.
type UserRepository interface {
	// FindByEmail devuelve ErrNotFound si no existe.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create asigna ID/CreatedAt/UpdatedAt. ErrConflict si el email ya existe.
	Create(ctx context.Context, u *User) error
	// Save persiste Name, PasswordHash y EmailVerifiedAt de un usuario existente.
	Save(ctx context.Context, u *User) error
	Ping(ctx context.Context) error
}
