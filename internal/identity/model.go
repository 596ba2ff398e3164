package identity

import "time"

// User is a registered account. WalletAddress is empty until a wallet is
// bound; SessionToken holds the most recently issued access token.
type User struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Nationality   string
	Sex           string
	BirthDate     time.Time
	PasswordHash  []byte
	WalletAddress string
	SessionToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile carries the user-supplied registration fields.
type Profile struct {
	Name        string
	Email       string
	Phone       string
	Nationality string
	Sex         string
	BirthDate   time.Time
}

// Update lists the mutable user columns. Nil fields are left untouched; an
// empty string clears the column.
type Update struct {
	SessionToken  *string
	WalletAddress *string
	PasswordHash  []byte
}

// PasswordReset is a single-use recovery token.
type PasswordReset struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
