package models

import (
	"time"
)

// User is a client or counselor account.
type User struct {
	UserID        string    `bson:"userid" json:"userid"`
	Username      string    `bson:"username" json:"username"`
	Email         string    `bson:"email" json:"email"`
	Password      string    `bson:"password" json:"-"` // bcrypt hash
	Role          []string  `bson:"role" json:"role"`  // client, counselor
	RefreshToken  string    `bson:"refresh_token,omitempty" json:"-"`
	RefreshExpiry time.Time `bson:"refresh_expiry,omitempty" json:"-"`
	LastLogin     time.Time `bson:"last_login,omitempty" json:"-"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}
