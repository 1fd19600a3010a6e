package domain

import "time"

// User mirrors an account owned by the external identity provider.
type User struct {
	ID            string
	ProviderID    string
	Name          string
	Email         string
	EmailVerified bool
	ImageURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
