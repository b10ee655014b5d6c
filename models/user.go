package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the permission level of an alumni network member
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Location is where a member currently lives
type Location struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// SocialLinks holds a member's public profile links
type SocialLinks struct {
	LinkedIn  string `json:"linkedin,omitempty"`
	GitHub    string `json:"github,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`
}

// User is the authenticated principal. It is created on first Google login
// and keyed by both the Google subject (optional) and the email address.
type User struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	GoogleID         *string     `json:"-" db:"google_id"`
	Email            string      `json:"email" db:"email"`
	FirstName        string      `json:"firstName" db:"first_name"`
	LastName         string      `json:"lastName" db:"last_name"`
	DisplayName      string      `json:"displayName" db:"display_name"`
	Avatar           *string     `json:"avatar" db:"avatar"`
	Bio              string      `json:"bio" db:"bio"`
	GraduationYear   *int        `json:"graduationYear,omitempty" db:"graduation_year"`
	Degree           string      `json:"degree,omitempty" db:"degree"`
	Major            string      `json:"major,omitempty" db:"major"`
	CurrentPosition  string      `json:"currentPosition,omitempty" db:"current_position"`
	Company          string      `json:"company,omitempty" db:"company"`
	Location         Location    `json:"location" db:"location"`
	SocialLinks      SocialLinks `json:"socialLinks" db:"social_links"`
	HasJoinedNetwork bool        `json:"hasJoinedNetwork" db:"has_joined_network"`
	NetworkJoinedAt  *time.Time  `json:"networkJoinedAt" db:"network_joined_at"`
	IsActive         bool        `json:"isActive" db:"is_active"`
	IsVerified       bool        `json:"isVerified" db:"is_verified"`
	Role             Role        `json:"role" db:"role"`
	LastLogin        time.Time   `json:"lastLogin" db:"last_login"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time   `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates an active, unverified member with the default role
func NewUser(email, firstName, lastName string) *User {
	now := time.Now().UTC()
	u := &User{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		IsActive:  true,
		Role:      RoleUser,
		LastLogin: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.DisplayName = u.FullName()
	return u
}

// NormalizeEmail lowercases and trims an address the way it is stored
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasRole reports whether the user's role is in the allowed set
func (u *User) HasRole(allowed ...Role) bool {
	for _, r := range allowed {
		if u.Role == r {
			return true
		}
	}
	return false
}

// ProfileCompleteness returns how much of the optional profile is filled in, 0..100
func (u *User) ProfileCompleteness() int {
	filled := 0
	fields := []bool{
		u.Bio != "",
		u.GraduationYear != nil,
		u.Degree != "",
		u.Major != "",
		u.CurrentPosition != "",
		u.Company != "",
		u.Location.City != "",
		u.Avatar != nil && *u.Avatar != "",
	}
	for _, ok := range fields {
		if ok {
			filled++
		}
	}
	return (filled*100 + len(fields)/2) / len(fields)
}

// Summary returns the minimal, public-safe view that may be placed in a redirect URL
func (u *User) Summary() PublicUserSummary {
	return PublicUserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		Role:      u.Role,
	}
}

// PublicProfile returns the view other members see
func (u *User) PublicProfile() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		DisplayName:    u.DisplayName,
		Avatar:         u.Avatar,
		Bio:            u.Bio,
		GraduationYear: u.GraduationYear,
		Degree:         u.Degree,
		Major:          u.Major,
		SocialLinks:    u.SocialLinks,
	}
}

// PublicUserSummary is handed to the client after OAuth login
type PublicUserSummary struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Avatar    *string   `json:"avatar"`
	Role      Role      `json:"role"`
}

// PublicProfile omits contact details, account flags and timestamps
type PublicProfile struct {
	ID             uuid.UUID   `json:"id"`
	FirstName      string      `json:"firstName"`
	LastName       string      `json:"lastName"`
	DisplayName    string      `json:"displayName"`
	Avatar         *string     `json:"avatar"`
	Bio            string      `json:"bio"`
	GraduationYear *int        `json:"graduationYear,omitempty"`
	Degree         string      `json:"degree,omitempty"`
	Major          string      `json:"major,omitempty"`
	SocialLinks    SocialLinks `json:"socialLinks"`
}
