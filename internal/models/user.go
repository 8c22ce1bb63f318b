package models

// User is read-only inside the pipeline; account management lives in the
// API layer. PreferredChannel drives which channel new alerts are created
// with.
type User struct {
	ID               string   `json:"id" db:"id"`
	Email            string   `json:"email" db:"email"`
	EmailOptIn       bool     `json:"email_opt_in" db:"email_opt_in"`
	PreferredChannel Channel  `json:"preferred_channel" db:"preferred_channel"`
	PushTokens       []string `json:"-" db:"-"`
}
