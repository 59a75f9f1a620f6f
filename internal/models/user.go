package models

import (
	"strconv"
	"time"
)

type User struct {
	ID             int64   `json:"id"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	ProfilePicture *string `json:"profile_picture"`
	ScreenName     string  `json:"screen_name"`
	Email          string  `json:"email,omitempty"`

	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Public returns a copy safe to show to other users.
func (u *User) Public() *User {
	c := *u
	c.Email = ""
	c.PasswordHash = ""
	return &c
}

// DefaultScreenName is the screen name a user has until they pick one.
func DefaultScreenName(id int64) string {
	return "user" + strconv.FormatInt(id, 10)
}

type PendingRegistration struct {
	ID               int64
	Email            string
	PasswordHash     string
	VerificationCode string
	FirstName        string
	LastName         string
	CreatedAt        time.Time
}

type Token struct {
	ID            int64
	UserID        int64
	Selector      string
	ValidatorHash string
	CreatedAt     time.Time
}

// FriendLists groups a user's friendship edges by direction.
type FriendLists struct {
	Mutual   []*User `json:"mutual"`
	Incoming []*User `json:"incoming"`
	Outgoing []*User `json:"outgoing"`
}

// SessionUser is the login response: the caller's own profile plus token.
type SessionUser struct {
	*User
	Token string `json:"token"`
}
