package models

import (
	"time"
)

// User represents a user synchronized from Cognito ID token claims.
// The primary key is the Cognito subject identifier, which is immutable
// and globally unique.
type User struct {
	ID              string                 `json:"id" db:"id"` // Cognito sub
	Email           string                 `json:"email" db:"email"`
	EmailVerified   bool                   `json:"email_verified" db:"email_verified"`
	CognitoUsername string                 `json:"cognito_username" db:"cognito_username"`
	Name            string                 `json:"name" db:"name"`
	PictureURL      string                 `json:"picture_url" db:"picture_url"`
	AuthProvider    string                 `json:"auth_provider" db:"auth_provider"`
	PhoneNumber     string                 `json:"phone_number" db:"phone_number"`
	Bio             string                 `json:"bio" db:"bio"`
	Preferences     map[string]interface{} `json:"preferences" db:"preferences"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
	LastLogin       time.Time              `json:"last_login" db:"last_login"`
	IsActive        bool                   `json:"is_active" db:"is_active"`
	DeletedAt       *time.Time             `json:"deleted_at,omitempty" db:"deleted_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a User keyed by the Cognito subject identifier
func NewUser(sub, email string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           sub,
		Email:        email,
		AuthProvider: "Cognito",
		Preferences:  map[string]interface{}{},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLogin:    now,
		IsActive:     true,
	}
}

// IsDeleted returns true if the user has been soft-deleted
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// Profile is the public representation of a user returned by the API
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	AuthProvider  string    `json:"auth_provider"`
	PictureURL    string    `json:"picture_url,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastLogin     time.Time `json:"last_login"`
}

// Profile returns the user's public profile
func (u *User) Profile() *Profile {
	return &Profile{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		AuthProvider:  u.AuthProvider,
		PictureURL:    u.PictureURL,
		Bio:           u.Bio,
		PhoneNumber:   u.PhoneNumber,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
	}
}
