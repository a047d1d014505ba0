package users

import "time"

type User struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	IsAdmin        bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Patch carries the fields a user may change on their own account.
type Patch struct {
	Username *string
	Email    *string
	Password *string
}

type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}
