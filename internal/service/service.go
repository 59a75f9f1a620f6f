// Package service holds the chat domain rules. Every mutation is persisted
// first; observers are notified only after the store accepted the change.
package service

import (
	"context"
	"time"

	"mrsh/internal/auth"
	"mrsh/internal/blob"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

// Notifier receives domain events after they are committed. Implementations
// must not block.
type Notifier interface {
	ChatMessage(msg *models.Message)
	MemberAdded(chat *models.Chat, userID int64, last *models.Message)
	MemberRemoved(chat *models.Chat, userID int64)
	MessageRead(msg *models.Message)
	FriendRequest(from *models.User, targetID int64, mutual bool)
	FriendRemoved(from *models.User, targetID int64, wasMutual bool)
	SettingsChanged(userID int64, changed map[string]any)
	SessionRevoked(userID int64, token string)
}

type Mailer interface {
	SendVerification(to, code string) error
}

type Options struct {
	VerificationTTL time.Duration
	BcryptCost      int
	MediaBaseURL    string
}

type Deps struct {
	Users    *db.UserRepository
	Pending  *db.PendingRegistrationRepository
	Chats    *db.ChatRepository
	Messages *db.MessageRepository
	Friends  *db.FriendRepository
	Sessions *auth.Sessions
	Blobs    *blob.Service
	Mailer   Mailer
	Notifier Notifier
}

type Service struct {
	users    *db.UserRepository
	pending  *db.PendingRegistrationRepository
	chats    *db.ChatRepository
	messages *db.MessageRepository
	friends  *db.FriendRepository
	sessions *auth.Sessions
	blobs    *blob.Service
	mailer   Mailer
	notify   Notifier
	opts     Options
}

func New(d Deps, opts Options) *Service {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = 48 * time.Hour
	}
	notify := d.Notifier
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Service{
		users:    d.Users,
		pending:  d.Pending,
		chats:    d.Chats,
		messages: d.Messages,
		friends:  d.Friends,
		sessions: d.Sessions,
		blobs:    d.Blobs,
		mailer:   d.Mailer,
		notify:   notify,
		opts:     opts,
	}
}

// Authorize resolves a session token to its owner.
func (s *Service) Authorize(ctx context.Context, token string) (*models.User, error) {
	return s.sessions.Authorize(ctx, token)
}

type NopNotifier struct{}

func (NopNotifier) ChatMessage(*models.Message) {}
func (NopNotifier) MemberAdded(*models.Chat, int64, *models.Message) {}
func (NopNotifier) MemberRemoved(*models.Chat, int64) {}
func (NopNotifier) MessageRead(*models.Message) {}
func (NopNotifier) FriendRequest(*models.User, int64, bool) {}
func (NopNotifier) FriendRemoved(*models.User, int64, bool) {}
func (NopNotifier) SettingsChanged(int64, map[string]any) {}
func (NopNotifier) SessionRevoked(int64, string) {}
