package domain

import "time"

// User is an internal employee who can refer candidates.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the already-verified caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
}
