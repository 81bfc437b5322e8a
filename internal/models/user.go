package models

import "time"

// Role represents the authorization role of a user
type Role string

const (
	RoleInvestor Role = "investor"
	RoleAdmin    Role = "admin"
	RoleAnalyst  Role = "analyst"
)

// CanReadAllPortfolios reports whether the role may read portfolios it does not own.
func (r Role) CanReadAllPortfolios() bool {
	return r == RoleAdmin || r == RoleAnalyst
}

// User represents the user model in the database
type User struct {
	Base
	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	Password    string     `gorm:"not null" json:"-"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        Role       `gorm:"not null;default:'investor'" json:"role"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
