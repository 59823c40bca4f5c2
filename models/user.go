package models

import (
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a single anonymous message embedded in its owner's document.
// Messages are immutable after creation; the only mutation is removal.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// User represents a registered account together with its inbox
type User struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username            string             `bson:"username" json:"username"`
	Email               string             `bson:"email" json:"email"`
	Password            string             `bson:"password" json:"-"` // bcrypt hash, never returned in JSON
	VerifyCode          string             `bson:"verifyCode" json:"-"`
	VerifyCodeExpiry    time.Time          `bson:"verifyCodeExpiry" json:"-"`
	IsVerified          bool               `bson:"isVerified" json:"isVerified"`
	IsAcceptingMessages bool               `bson:"isAcceptingMessage" json:"isAcceptingMessages"`
	Messages            []Message          `bson:"messages" json:"messages"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

var usernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_]{2,20}$`)

// ValidateUsername reports whether a username is acceptable: 2-20 characters,
// alphanumeric and underscore only. The returned message is safe to show to
// the client.
func ValidateUsername(username string) (bool, string) {
	if len(username) < 2 {
		return false, "Username must be at least 2 characters"
	}
	if len(username) > 20 {
		return false, "Username no more than 20 characters"
	}
	if !usernameRegexp.MatchString(username) {
		return false, "Username cannot contain special characters"
	}
	return true, ""
}

// VerifyOutcome is the result of checking a verification code against a user.
type VerifyOutcome int

const (
	VerifyOK VerifyOutcome = iota
	VerifyAlreadyVerified
	VerifyInvalidCode
	VerifyCodeExpired
)

// CheckVerifyCode decides the outcome of a verification attempt at the given
// instant. A wrong code is reported as invalid regardless of expiry; a correct
// code past its expiry is reported as expired. Callers must be able to tell
// the two apart.
func (u *User) CheckVerifyCode(code string, now time.Time) VerifyOutcome {
	if u.IsVerified {
		return VerifyAlreadyVerified
	}
	if u.VerifyCode != code {
		return VerifyInvalidCode
	}
	if !now.Before(u.VerifyCodeExpiry) {
		return VerifyCodeExpired
	}
	return VerifyOK
}
