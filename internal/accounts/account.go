package accounts

import "time"

// Account is a registered identity. Credentials and verification codes never
// leave the server.
type Account struct {
	ID               string     `bson:"_id" json:"id"`
	Username         string     `bson:"username" json:"username"`
	Email            string     `bson:"email" json:"email"`
	PasswordHash     string     `bson:"passwordHash" json:"-"`
	Verified         bool       `bson:"isVerified" json:"isVerified"`
	VerificationCode string     `bson:"verificationCode,omitempty" json:"-"`
	CodeExpiresAt    *time.Time `bson:"codeExpiresAt,omitempty" json:"-"`
	CreatedAt        time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updatedAt"`
}

func (a *Account) clone() *Account {
	c := *a
	if a.CodeExpiresAt != nil {
		t := *a.CodeExpiresAt
		c.CodeExpiresAt = &t
	}
	return &c
}

// setCode stores a pending verification code valid until exp.
func (a *Account) setCode(code string, exp time.Time) {
	a.VerificationCode = code
	a.CodeExpiresAt = &exp
}

func (a *Account) clearCode() {
	a.VerificationCode = ""
	a.CodeExpiresAt = nil
}
