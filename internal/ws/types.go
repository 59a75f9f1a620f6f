package ws

import (
	"encoding/json"

	"mrsh/internal/apierr"
	"mrsh/internal/models"
)

// Events pushed by the server.
const (
	EventConnected       = "connected"
	EventNewMessage      = "new_message"
	EventChatInvite      = "chat_invite"
	EventChatRemoved     = "chat_removed"
	EventFriendRequest   = "friend_request"
	EventFriendRemoved   = "friend_removed"
	EventSettingsChanged = "settings_changed"
	EventMessageRead     = "message_read"
)

// CallFrame is a method call sent by the client.
type CallFrame struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Version string          `json:"version,omitempty"`
	Args    map[string]any  `json:"args,omitempty"`
}

// WSMessage is either a reply to a CallFrame (Success set) or a pushed event
// (Event set).
type WSMessage struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Success  *bool           `json:"success,omitempty"`
	Response any             `json:"response,omitempty"`
	Error    *apierr.Error   `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`

	// final makes the write pump close the connection after this message.
	final bool
}

// empty reports whether msg carries nothing to write.
func (m *WSMessage) empty() bool {
	return m.Event == "" && m.Success == nil
}

// closeMessage ends a connection once everything queued before it is written.
func closeMessage() *WSMessage {
	return &WSMessage{final: true}
}

func eventMessage(event string, data any) *WSMessage {
	return &WSMessage{Event: event, Data: data}
}

func replyMessage(id json.RawMessage, response any) *WSMessage {
	ok := true
	return &WSMessage{ID: id, Success: &ok, Response: response}
}

func errorMessage(id json.RawMessage, err *apierr.Error) *WSMessage {
	ok := false
	return &WSMessage{ID: id, Success: &ok, Error: err}
}

// ChatInvitePayload is the chat a user was added to with its newest message.
type ChatInvitePayload struct {
	*models.Chat
	LastMessage *models.Message `json:"last_message"`
}

type FriendRequestPayload struct {
	User   *models.User `json:"user"`
	Mutual bool         `json:"mutual"`
}

type FriendRemovedPayload struct {
	User      *models.User `json:"user"`
	Requested bool         `json:"requested"`
}
