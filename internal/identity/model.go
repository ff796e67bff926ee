package identity

import "time"

// User represents a registered viewer. Donation fields are only ever mutated
// through SetDonor when the payment provider confirms a charge.
type User struct {
	ID           string
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash []byte

	HasDonated        bool
	DonationAmount    int64
	DonationDate      time.Time
	DonationExpiresAt time.Time

	LastLogin time.Time
	CreatedAt time.Time
}

// FullName joins the stored name parts for token claims and responses.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Credentials carries the register/login request data.
type Credentials struct {
	Phone     string
	FirstName string
	LastName  string
	Password  string
}
