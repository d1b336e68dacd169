// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// MaxAboutMeLength is the column limit for User.AboutMe.
const MaxAboutMeLength = 500

// User represents a registered user account.
//
// PasswordHash carries a bcrypt hash and is tagged json:"-" so it never
// leaves the server in an API response.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	AboutMe      string    `json:"aboutMe"   db:"about_me"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ClipAboutMe returns s unchanged when it fits the column. Longer text keeps
// only its first MaxAboutMeLength-1 characters, the same cap existing
// profiles were written with.
func ClipAboutMe(s string) string {
	r := []rune(s)
	if len(r) > MaxAboutMeLength {
		return string(r[:MaxAboutMeLength-1])
	}
	return s
}
