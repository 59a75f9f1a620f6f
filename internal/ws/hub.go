package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"mrsh/internal/constants"
	"mrsh/internal/models"
)

const userLockShards = 64

// ChatLister lists the chats a user belongs to.
type ChatLister interface {
	ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// Hub tracks live connections per user and per chat room. Room membership
// changes for one user are serialized by that user's shard lock so a connect
// racing an invite or removal never leaves a connection in the wrong rooms.
type Hub struct {
	chats ChatLister

	mu     sync.RWMutex
	users  map[int64]map[*Client]struct{}
	rooms  map[int64]map[*Client]struct{}
	closed bool

	userLocks [userLockShards]sync.Mutex
}

func NewHub(chats ChatLister) *Hub {
	return &Hub{
		chats: chats,
		users: make(map[int64]map[*Client]struct{}),
		rooms: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) lockUser(userID int64) func() {
	m := &h.userLocks[uint64(userID)%userLockShards]
	m.Lock()
	return m.Unlock
}

// Connect registers client under its user, joins it to the rooms of every
// chat the user is in and sends it the connected event.
func (h *Hub) Connect(ctx context.Context, client *Client) error {
	userID := client.user.ID
	unlock := h.lockUser(userID)
	defer unlock()

	chatIDs, err := h.chats.ChatIDsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading chats for user %d: %w", userID, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("hub is shut down")
	}
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[userID] = set
	}
	set[client] = struct{}{}
	for _, chatID := range chatIDs {
		h.joinLocked(client, chatID)
	}
	client.transitionTo(ClientStateIdentified)
	h.sendLocked(client, eventMessage(EventConnected, client.user))
	h.mu.Unlock()

	slog.Debug("client connected", "component", "hub", "user_id", userID, "session_id", client.sessionID, "rooms", len(chatIDs))
	return nil
}

// Disconnect removes client from its user and every room, then closes its
// send channel. It is safe to call more than once. The channel is closed
// under h.mu so nothing holding the lock can send on it afterwards.
func (h *Hub) Disconnect(client *Client) {
	if client.user != nil {
		unlock := h.lockUser(client.user.ID)
		defer unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
	client.CloseSend()
}

func (h *Hub) removeLocked(client *Client) {
	if client.user != nil {
		if set, ok := h.users[client.user.ID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.users, client.user.ID)
			}
		}
	}
	for chatID := range client.rooms {
		h.leaveLocked(client, chatID)
	}
}

func (h *Hub) joinLocked(client *Client, chatID int64) {
	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[chatID] = room
	}
	room[client] = struct{}{}
	client.rooms[chatID] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, chatID int64) {
	if room, ok := h.rooms[chatID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(client.rooms, chatID)
}

// JoinChat adds every live connection of userID to the chat's room.
func (h *Hub) JoinChat(userID, chatID int64) {
	unlock := h.lockUser(userID)
	defer unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.users[userID] {
		h.joinLocked(client, chatID)
	}
}

// LeaveChat removes every live connection of userID from the chat's room.
func (h *Hub) LeaveChat(userID, chatID int64) {
	unlock := h.lockUser(userID)
	defer unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.users[userID] {
		h.leaveLocked(client, chatID)
	}
}

// SendToUser delivers msg to every live connection of userID.
func (h *Hub) SendToUser(userID int64, msg *WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.users[userID] {
		h.sendLocked(client, msg)
	}
}

// BroadcastToChat delivers msg to every connection in the chat's room.
func (h *Hub) BroadcastToChat(chatID int64, msg *WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[chatID] {
		h.sendLocked(client, msg)
	}
}

func (h *Hub) sendLocked(client *Client, msg *WSMessage) {
	if !client.IsIdentified() {
		return
	}
	select {
	case client.send <- msg:
	default:
		dropped := atomic.AddInt64(&client.DroppedMessages, 1)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "user_id", client.user.ID)
		}
		if dropped >= constants.WSMaxDroppedMessages {
			slog.Warn("disconnecting slow client", "component", "hub", "user_id", client.user.ID, "dropped", dropped)
			client.Close()
		}
	}
}

// Online reports how many live connections userID has.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomSize reports how many connections are joined to the chat's room.
func (h *Hub) RoomSize(chatID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// Shutdown closes every connection and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var clients []*Client
	for _, set := range h.users {
		for client := range set {
			clients = append(clients, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.Disconnect(client)
	}
	slog.Info("shutdown complete", "component", "hub", "clients", len(clients))
}

func (h *Hub) ChatMessage(msg *models.Message) {
	h.BroadcastToChat(msg.ChatID, eventMessage(EventNewMessage, msg))
}

func (h *Hub) MemberAdded(chat *models.Chat, userID int64, last *models.Message) {
	h.JoinChat(userID, chat.ID)
	h.SendToUser(userID, eventMessage(EventChatInvite, ChatInvitePayload{Chat: chat, LastMessage: last}))
}

func (h *Hub) MemberRemoved(chat *models.Chat, userID int64) {
	h.LeaveChat(userID, chat.ID)
	h.SendToUser(userID, eventMessage(EventChatRemoved, chat))
}

func (h *Hub) MessageRead(msg *models.Message) {
	h.BroadcastToChat(msg.ChatID, eventMessage(EventMessageRead, msg))
}

func (h *Hub) FriendRequest(from *models.User, targetID int64, mutual bool) {
	h.SendToUser(targetID, eventMessage(EventFriendRequest, FriendRequestPayload{User: from, Mutual: mutual}))
}

func (h *Hub) FriendRemoved(from *models.User, targetID int64, wasMutual bool) {
	h.SendToUser(targetID, eventMessage(EventFriendRemoved, FriendRemovedPayload{User: from, Requested: wasMutual}))
}

// SessionRevoked stops routing events to connections authenticated with
// token and closes them. A connection busy with the revoking call closes
// after its reply.
func (h *Hub) SessionRevoked(userID int64, token string) {
	unlock := h.lockUser(userID)
	defer unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	closed := 0
	for client := range h.users[userID] {
		if client.token != token {
			continue
		}
		h.removeLocked(client)
		client.revoked.Store(true)
		if !client.calling.Load() {
			select {
			case client.send <- closeMessage():
			default:
				client.Close()
			}
		}
		closed++
	}
	if closed > 0 {
		slog.Debug("session revoked", "component", "hub", "user_id", userID, "connections", closed)
	}
}

func (h *Hub) SettingsChanged(userID int64, changed map[string]any) {
	h.SendToUser(userID, eventMessage(EventSettingsChanged, changed))
}
