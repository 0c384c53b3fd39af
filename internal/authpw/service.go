// Package authpw provides email/password credential checks for the roster.
// Accounts are provisioned by admins and leaders, so there is no self
// sign-up flow here, only sign-in and password management.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"pitpc/api/internal/store"
)

// ErrCredencialesInvalidas covers both unknown emails and bad passwords so
// responses never reveal which one failed.
var ErrCredencialesInvalidas = errors.New("correo o contraseña incorrectos")

// ErrUsuarioInactivo rejects sign-in for deactivated accounts.
var ErrUsuarioInactivo = errors.New("usuario inactivo")

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetUsuarioByEmail(ctx context.Context, email string) (store.Usuario, error)
	UpdateUsuarioPassword(ctx context.Context, id, passwordHash string) error
}

// Service provides email/password authentication.
type Service struct {
	store UserStore
}

// NewService creates a new auth service.
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Usuario, error) {
	if email == "" || password == "" {
		return store.Usuario{}, ErrCredencialesInvalidas
	}

	usuario, err := s.store.GetUsuarioByEmail(ctx, email)
	if err != nil {
		return store.Usuario{}, ErrCredencialesInvalidas
	}
	if err := bcrypt.CompareHashAndPassword([]byte(usuario.PasswordHash), []byte(password)); err != nil {
		return store.Usuario{}, ErrCredencialesInvalidas
	}
	if !usuario.Activo {
		return store.Usuario{}, ErrUsuarioInactivo
	}

	return usuario, nil
}

// ChangePassword replaces a user's password after validating the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUsuarioPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HashPassword validates and hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("la contraseña debe tener al menos 8 caracteres")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
