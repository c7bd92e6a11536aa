package models

import "time"

// AuthToken is an OAuth token pair with its expiry instant
type AuthToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Valid reports whether the access token can be used at now.
func (t AuthToken) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry)
}
