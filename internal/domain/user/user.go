package user

import "time"

// Profile is the persisted record of one external identity.
type Profile struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Picture      string        `json:"picture,omitempty"`
	FirstLoginAt time.Time     `json:"firstLoginAt"`
	LastLoginAt  time.Time     `json:"lastLoginAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	CustomModels *CustomModels `json:"customModels,omitempty"`
}

// CustomModels overrides the model names used for this user.
type CustomModels struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Identity is what the external identity provider hands over after a successful login.
type Identity struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

type UpdateExpiryInput struct {
	ExpiresAt    time.Time
	CustomModels *CustomModels
}

func (p *Profile) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
