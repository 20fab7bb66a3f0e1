package models

import "time"

// Role separates county staff from state-agency staff.
type Role string

const (
	RoleCounty Role = "county"
	RoleState  Role = "state"
	RoleAdmin  Role = "admin"
)

// User is a portal account.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Role         Role      `json:"role" db:"role"`
	Organization string    `json:"organization" db:"organization"`
	CountyID     *string   `json:"countyId,omitempty" db:"county_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
