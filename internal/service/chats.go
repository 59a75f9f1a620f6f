package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"mrsh/internal/apierr"
	"mrsh/internal/blob"
	"mrsh/internal/constants"
	"mrsh/internal/db"
	"mrsh/internal/mediaurl"
	"mrsh/internal/models"
)

// Page selects a window of a chat's history.
type Page struct {
	Count             int
	Offset            int
	Antichronological bool
}

func DefaultPage() Page {
	return Page{Count: constants.DefaultMessageCount, Antichronological: true}
}

// ChatForMember loads a chat userID belongs to. Missing chats and chats the
// user is not in are both reported as peer_not_found.
func (s *Service) ChatForMember(ctx context.Context, chatID, userID int64) (*models.Chat, error) {
	chat, err := s.chats.FindByID(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apierr.PeerNotFound(chatID)
	}
	if err != nil {
		return nil, err
	}

	member, err := s.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apierr.PeerNotFound(chatID)
	}
	return chat, nil
}

// MessageForMember is ChatForMember for messages, masked as
// message_not_found.
func (s *Service) MessageForMember(ctx context.Context, messageID, userID int64) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apierr.MessageNotFound(messageID)
	}
	if err != nil {
		return nil, err
	}

	member, err := s.chats.IsMember(ctx, msg.ChatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apierr.MessageNotFound(messageID)
	}
	return msg, nil
}

// PrivateChat returns the private chat between userID and peer.
func (s *Service) PrivateChat(ctx context.Context, userID int64, peer *models.User) (*models.Chat, error) {
	if peer.ID == userID {
		return nil, apierr.InvalidArgument("user_id")
	}
	chat, err := s.chats.FindPrivate(ctx, userID, peer.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apierr.PeerNotFound(peer.ID)
	}
	return chat, err
}

// CreateChat creates a chat holding user and memberIDs, announced by a
// message from user. Every member starts with the announcement read.
func (s *Service) CreateChat(ctx context.Context, user *models.User, title string, memberIDs []int64, private bool) (*models.ChatDetails, error) {
	members := []int64{user.ID}
	for _, id := range memberIDs {
		if id != user.ID {
			members = append(members, id)
		}
	}
	if private && len(members) != 2 {
		return nil, apierr.InvalidArgumentf("%s argument is invalid. Cannot create private chats with more than one user.", "user_ids")
	}

	kind := "group"
	if private {
		kind = "private"
	}

	chat, msg, err := s.chats.Create(ctx, db.NewChat{
		Title:     title,
		Private:   private,
		MemberIDs: members,
		AuthorID:  user.ID,
		Text:      fmt.Sprintf("%s created \"%s\" %s chat", user.FullName(), title, kind),
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apierr.ErrChatExists
	}
	if err != nil {
		return nil, err
	}

	for _, id := range members {
		s.notify.MemberAdded(chat, id, msg)
	}

	return s.Details(ctx, chat, user.ID, true, false)
}

// InviteToChat adds target to a group chat and announces it.
func (s *Service) InviteToChat(ctx context.Context, user *models.User, chat *models.Chat, target *models.User) error {
	if chat.Private {
		return apierr.InvalidArgument("peer_id")
	}

	last, err := s.chats.AddMember(ctx, chat.ID, target.ID)
	if errors.Is(err, db.ErrDuplicate) {
		return apierr.InvalidArgumentf("%s is already a chat member.", target.FullName())
	}
	if errors.Is(err, db.ErrNotFound) {
		return apierr.UserNotFound(target.ID)
	}
	if err != nil {
		return err
	}
	s.notify.MemberAdded(chat, target.ID, last)

	_, err = s.SendMessage(ctx, user, chat, fmt.Sprintf("%s invited %s to the chat.", user.FullName(), target.FullName()))
	return err
}

// LeaveChat removes user from a group chat and announces it to the rest.
func (s *Service) LeaveChat(ctx context.Context, user *models.User, chat *models.Chat) error {
	if chat.Private {
		return apierr.InvalidArgument("peer_id")
	}

	err := s.chats.RemoveMember(ctx, chat.ID, user.ID)
	if errors.Is(err, db.ErrNotFound) {
		return apierr.PeerNotFound(chat.ID)
	}
	if err != nil {
		return err
	}
	s.notify.MemberRemoved(chat, user.ID)

	_, err = s.SendMessage(ctx, user, chat, fmt.Sprintf("%s left the chat.", user.FullName()))
	return err
}

// SendMessage posts text to chat. The author's own watermark moves to the
// new message.
func (s *Service) SendMessage(ctx context.Context, user *models.User, chat *models.Chat, text string) (*models.Message, error) {
	msg, err := s.messages.Create(ctx, chat.ID, user.ID, text)
	if err != nil {
		return nil, err
	}
	if _, err := s.chats.AdvanceMemberLastRead(ctx, chat.ID, user.ID, msg.ID); err != nil {
		return nil, err
	}

	s.notify.ChatMessage(msg)
	return msg, nil
}

// MarkAsRead moves the reader's watermark to msg. A reader other than the
// author also moves the chat-wide watermark, and a move is broadcast.
func (s *Service) MarkAsRead(ctx context.Context, user *models.User, msg *models.Message) error {
	if msg.AuthorID != user.ID {
		moved, err := s.chats.AdvanceLastRead(ctx, msg.ChatID, msg.ID)
		if err != nil {
			return err
		}
		if moved {
			s.notify.MessageRead(msg)
		}
	}

	_, err := s.chats.AdvanceMemberLastRead(ctx, msg.ChatID, user.ID, msg.ID)
	return err
}

func (s *Service) History(ctx context.Context, chat *models.Chat, page Page) ([]*models.Message, error) {
	return s.messages.List(ctx, chat.ID, page.Count, page.Offset, page.Antichronological)
}

// Details decorates chat with its members and userID's watermark.
func (s *Service) Details(ctx context.Context, chat *models.Chat, userID int64, withMembers, withLastRead bool) (*models.ChatDetails, error) {
	d := &models.ChatDetails{Chat: chat}
	if withMembers {
		members, err := s.chats.Members(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		d.Members = members
	}
	if withLastRead {
		lastRead, err := s.chats.MemberLastRead(ctx, chat.ID, userID)
		if err != nil {
			return nil, err
		}
		d.UserLastRead = &lastRead
	}
	return d, nil
}

type ChatListOptions struct {
	ByLastMessage bool
	WithLastRead  bool
}

// ListChats returns every chat of userID with members and last message.
func (s *Service) ListChats(ctx context.Context, userID int64, opts ChatListOptions) ([]*models.ChatDetails, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.ChatDetails, 0, len(chats))
	for _, chat := range chats {
		d, err := s.Details(ctx, chat, userID, true, opts.WithLastRead)
		if err != nil {
			return nil, err
		}
		d.LastMessage, err = s.messages.Last(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if opts.ByLastMessage {
		sort.SliceStable(out, func(i, j int) bool {
			return newer(out[i].LastMessage, out[j].LastMessage)
		})
	}
	return out, nil
}

// newer orders chats by last message, chats without messages last.
func newer(a, b *models.Message) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case !a.Datetime.Equal(b.Datetime):
		return a.Datetime.After(b.Datetime)
	}
	return a.ID > b.ID
}

// ChangeChatImage stores img as the chat image and returns its URL.
func (s *Service) ChangeChatImage(ctx context.Context, chat *models.Chat, img image.Image) (string, error) {
	url, err := s.storeImage(ctx, blob.KindChatImage, img)
	if err != nil {
		return "", err
	}
	if err := s.chats.SetImage(ctx, chat.ID, url); err != nil {
		return "", err
	}

	s.dropImage(ctx, chat.Image)
	chat.Image = &url
	return url, nil
}

func (s *Service) storeImage(ctx context.Context, kind blob.Kind, img image.Image) (string, error) {
	key, err := s.blobs.SaveImage(ctx, kind, img)
	if err != nil {
		return "", err
	}
	return mediaurl.Object(s.opts.MediaBaseURL, key), nil
}

// dropImage deletes a replaced image. Failures only leave an orphan file.
func (s *Service) dropImage(ctx context.Context, old *string) {
	if old == nil {
		return
	}
	key, ok := mediaurl.ParseObjectKey(*old)
	if !ok {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("deleting replaced image", "component", "chats", "error", err, "key", key)
	}
}
