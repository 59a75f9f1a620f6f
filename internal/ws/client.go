package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"mrsh/internal/apierr"
	"mrsh/internal/constants"
	"mrsh/internal/models"
	"mrsh/internal/rpc"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateConnected  ClientState = iota // upgraded, not yet registered with the hub
	ClientStateIdentified                    // registered, receiving events
	ClientStateClosing
	ClientStateClosed
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	maxMessageSize = 65536
)

// Dispatcher runs a method call on behalf of a connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *rpc.Call) (any, error)
}

// Client is a single authenticated WebSocket connection.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	dispatcher    Dispatcher
	send          chan *WSMessage
	connCloseOnce sync.Once

	state atomic.Int32

	user      *models.User
	token     string
	sessionID string

	// rooms is guarded by hub.mu.
	rooms map[int64]struct{}

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64

	// limiter is only used from ReadPump.
	limiter *rate.Limiter

	// calling is set while a frame is being dispatched. revoked is set once
	// the session token has been revoked. Both are read and cleared under
	// hub.mu so a revocation either rides on the pending reply or closes
	// the connection itself.
	calling atomic.Bool
	revoked atomic.Bool
}

func NewClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, user *models.User, token string) *Client {
	c := &Client{
		hub:        hub,
		conn:       conn,
		dispatcher: dispatcher,
		send:       make(chan *WSMessage, constants.WSClientSendBufferSize),
		user:       user,
		token:      token,
		sessionID:  uuid.NewString(),
		rooms:      make(map[int64]struct{}),
		limiter:    rate.NewLimiter(rate.Every(constants.WSCallRateInterval), constants.WSCallBurst),
	}
	c.state.Store(int32(ClientStateConnected))
	return c
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) User() *models.User {
	return c.user
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.closeConn()
}

func (c *Client) closeConn() {
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "component", "ws", "user_id", c.user.ID, "error", err)
			}
			return
		}
		c.handleFrame(message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if !message.empty() {
				if err := c.conn.WriteJSON(message); err != nil {
					slog.Debug("websocket write failed", "component", "ws", "user_id", c.user.ID, "error", err)
					return
				}
			}
			if message.final {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}

		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame runs one call frame and queues its reply.
func (c *Client) handleFrame(raw []byte) {
	var frame CallFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Method == "" {
		c.reply(errorMessage(frame.ID, apierr.ErrInvalidRequest))
		return
	}

	if !c.limiter.Allow() {
		c.reply(errorMessage(frame.ID, apierr.ErrRateLimited))
		return
	}

	call := &rpc.Call{
		Version: frame.Version,
		Method:  frame.Method,
		Args:    rpc.Args(frame.Args),
		Token:   c.token,
	}
	c.calling.Store(true)
	result, err := c.dispatcher.Dispatch(context.Background(), call)
	if err != nil {
		apiErr, _ := apierr.From(err)
		c.reply(errorMessage(frame.ID, apiErr))
		return
	}
	c.reply(replyMessage(frame.ID, result))
}

// reply queues msg without blocking; replies to a saturated client are
// dropped like events. A reply to the call that revoked the connection's
// own session is the last message written.
func (c *Client) reply(msg *WSMessage) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	c.calling.Store(false)
	if c.IsClosed() {
		return
	}
	if c.revoked.Load() {
		msg.final = true
	}
	select {
	case c.send <- msg:
	default:
		if msg.final || atomic.AddInt64(&c.DroppedMessages, 1) >= constants.WSMaxDroppedMessages {
			c.Close()
		}
	}
}

// State returns the current client state
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// IsIdentified returns true if the client is in the identified state
func (c *Client) IsIdentified() bool {
	return c.State() == ClientStateIdentified
}

// IsClosed returns true if the client is closing or closed
func (c *Client) IsClosed() bool {
	state := c.State()
	return state == ClientStateClosing || state == ClientStateClosed
}

// isValidClientTransition checks if a state transition is valid
func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateConnected:
		return to == ClientStateIdentified || to == ClientStateClosing
	case ClientStateIdentified:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	case ClientStateClosed:
		return false
	}
	return false
}

// transitionTo atomically transitions to a new state if valid
func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// CloseSend closes the send channel (called by hub during cleanup)
func (c *Client) CloseSend() {
	c.transitionTo(ClientStateClosing)
	if c.transitionTo(ClientStateClosed) {
		close(c.send)
		c.closeConn()
	}
}
