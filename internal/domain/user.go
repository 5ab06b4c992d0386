package domain

import "time"

// User is an administrative account. Any authenticated user may access any
// project's logs; users are created through the bootstrap CLI only.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}
