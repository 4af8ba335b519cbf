package model

import (
	"errors"
	"strings"
	"time"
)

type StaffRole string

const (
	RoleAdmin   StaffRole = "admin"
	RoleSupport StaffRole = "support"
)

func (r StaffRole) Valid() bool {
	return r == RoleAdmin || r == RoleSupport
}

type StaffUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         StaffRole `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type StaffCreateRequest struct {
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Role     StaffRole `json:"role"`
}

const MinPasswordLength = 6

func (r *StaffCreateRequest) Validate() error {
	r.Username = strings.ToLower(strings.TrimSpace(r.Username))
	r.Name = strings.TrimSpace(r.Name)
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.Name == "" {
		r.Name = r.Username
	}
	if len(r.Password) < MinPasswordLength {
		return errors.New("password must have at least 6 characters")
	}
	if r.Role == "" {
		r.Role = RoleSupport
	}
	if !r.Role.Valid() {
		return errors.New("role must be admin or support")
	}
	return nil
}
