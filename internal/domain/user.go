// Package domain contains entity without logic, just meta-data
package domain

import "strings"

const MaxUserIDLen = 64

type UserID string

// User is the read-only profile the relay needs about an authenticated identity.
type User struct {
	ID        UserID `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

// DisplayName is what other participants see next to chat messages.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return string(u.ID)
	}
	return name
}

// ValidUserID reports whether id can be used as a map key and wire identifier.
func ValidUserID(id UserID) bool {
	return id != "" && len(id) <= MaxUserIDLen
}
