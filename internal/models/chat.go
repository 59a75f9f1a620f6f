package models

import "time"

type Chat struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Private  bool    `json:"private"`
	Image    *string `json:"image"`
	LastRead int64   `json:"last_read"`

	CreatedAt time.Time `json:"-"`
}

// ChatDetails is a chat with the optional extras different API versions
// attach to it.
type ChatDetails struct {
	*Chat
	Members      []*User  `json:"members,omitempty"`
	LastMessage  *Message `json:"last_message,omitempty"`
	UserLastRead *int64   `json:"user_last_read,omitempty"`
}

type Message struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chat_id"`
	AuthorID int64     `json:"author_id"`
	Text     string    `json:"text"`
	Datetime time.Time `json:"datetime"`
	Author   *User     `json:"author"`
}

type Membership struct {
	ChatID   int64
	MemberID int64
	LastRead int64
}
