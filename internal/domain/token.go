package domain

import "time"

// AccessToken is the broker OAuth token as mirrored to disk.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
	IssuedAt    time.Time `json:"issued_at"`
}

// TokenStore mirrors the cached token to durable storage.
type TokenStore interface {
	LoadToken() (*AccessToken, error)
	SaveToken(token *AccessToken) error
}
