package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mrsh/internal/apierr"
	"mrsh/internal/auth"
	"mrsh/internal/blob"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingNotifier) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recordingNotifier) ChatMessage(msg *models.Message) {
	r.add("new_message chat=%d text=%s", msg.ChatID, msg.Text)
}

func (r *recordingNotifier) MemberAdded(chat *models.Chat, userID int64, last *models.Message) {
	r.add("chat_invite chat=%d user=%d last=%d", chat.ID, userID, last.ID)
}

func (r *recordingNotifier) MemberRemoved(chat *models.Chat, userID int64) {
	r.add("chat_removed chat=%d user=%d", chat.ID, userID)
}

func (r *recordingNotifier) MessageRead(msg *models.Message) {
	r.add("message_read chat=%d message=%d", msg.ChatID, msg.ID)
}

func (r *recordingNotifier) FriendRequest(from *models.User, targetID int64, mutual bool) {
	r.add("friend_request from=%d to=%d mutual=%v", from.ID, targetID, mutual)
}

func (r *recordingNotifier) FriendRemoved(from *models.User, targetID int64, wasMutual bool) {
	r.add("friend_removed from=%d to=%d requested=%v", from.ID, targetID, wasMutual)
}

func (r *recordingNotifier) SettingsChanged(userID int64, changed map[string]any) {
	r.add("settings_changed user=%d fields=%d", userID, len(changed))
}

func (r *recordingNotifier) SessionRevoked(userID int64, token string) {
	r.add("session_revoked user=%d token=%s", userID, token)
}

type memoryMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *memoryMailer) SendVerification(to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

func (m *memoryMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type fixture struct {
	svc    *Service
	notify *recordingNotifier
	mailer *memoryMailer
	db     *db.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	users := db.NewUserRepository(database)
	sessions, err := auth.NewSessions(db.NewTokenRepository(database), users, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewSessions() error = %v", err)
	}
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	f := &fixture{
		notify: &recordingNotifier{},
		mailer: &memoryMailer{codes: map[string]string{}},
		db:     database,
	}
	f.svc = New(Deps{
		Users:    users,
		Pending:  db.NewPendingRegistrationRepository(database),
		Chats:    db.NewChatRepository(database),
		Messages: db.NewMessageRepository(database),
		Friends:  db.NewFriendRepository(database),
		Sessions: sessions,
		Blobs:    blob.NewService(store),
		Mailer:   f.mailer,
		Notifier: f.notify,
	}, Options{BcryptCost: bcrypt.MinCost, MediaBaseURL: "https://example.com"})
	return f
}

func (f *fixture) user(t *testing.T, first string) *models.User {
	t.Helper()
	ctx := context.Background()
	email := strings.ToLower(first) + "@example.com"
	if err := f.svc.Register(ctx, Registration{Email: email, Password: "secret", FirstName: first, LastName: "Test"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	u, err := f.svc.Verify(ctx, f.mailer.code(email))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	return u
}

func (f *fixture) befriend(t *testing.T, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.AddFriend(ctx, a, b.ID); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	if _, err := f.svc.AddFriend(ctx, b, a.ID); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	f.notify.take()
}

func wantCode(t *testing.T, err error, code apierr.Code) {
	t.Helper()
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != code {
		t.Fatalf("error = %v, want code %d", err, code)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := Registration{Email: "ann@example.com", Password: "pw", FirstName: "Ann", LastName: "Lee"}

	if err := f.svc.Register(ctx, reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	wantCode(t, f.svc.Register(ctx, reg), apierr.CodeEmailAlreadyRegistered)

	_, err := f.svc.Login(ctx, reg.Email, "pw")
	wantCode(t, err, apierr.CodeEmailNotVerified)
	_, err = f.svc.Login(ctx, "nobody@example.com", "pw")
	wantCode(t, err, apierr.CodeUserDoesNotExist)

	code := f.mailer.code(reg.Email)
	if code == "" {
		t.Fatal("no verification mail sent")
	}
	user, err := f.svc.Verify(ctx, code)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if user.ScreenName != models.DefaultScreenName(user.ID) {
		t.Fatalf("ScreenName = %q", user.ScreenName)
	}
	_, err = f.svc.Verify(ctx, code)
	wantCode(t, err, apierr.CodeVerificationError)

	wantCode(t, f.svc.ResendVerification(ctx, reg.Email), apierr.CodeAlreadyVerified)
	wantCode(t, f.svc.ResendVerification(ctx, "nobody@example.com"), apierr.CodeUserDoesNotExist)

	_, err = f.svc.Login(ctx, reg.Email, "wrong")
	wantCode(t, err, apierr.CodeWrongPassword)

	session, err := f.svc.Login(ctx, reg.Email, "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.Email != reg.Email || session.Token == "" {
		t.Fatalf("Login() = %+v", session)
	}

	authed, err := f.svc.Authorize(ctx, session.Token)
	if err != nil || authed.ID != user.ID {
		t.Fatalf("Authorize() = %v, %v", authed, err)
	}
	f.notify.take()
	if err := f.svc.Logout(ctx, user.ID, session.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	want := fmt.Sprintf("session_revoked user=%d token=%s", user.ID, session.Token)
	if got := f.notify.take(); len(got) != 1 || got[0] != want {
		t.Fatalf("events after Logout() = %v, want [%s]", got, want)
	}
	_, err = f.svc.Authorize(ctx, session.Token)
	wantCode(t, err, apierr.CodeInvalidToken)
	wantCode(t, f.svc.Logout(ctx, user.ID, session.Token), apierr.CodeInvalidToken)
	if got := f.notify.take(); len(got) != 0 {
		t.Fatalf("failed Logout() notified %v", got)
	}
}

func TestDenyVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Register(ctx, Registration{Email: "bob@example.com", Password: "pw", FirstName: "Bob"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	code := f.mailer.code("bob@example.com")
	if err := f.svc.DenyVerification(ctx, code); err != nil {
		t.Fatalf("DenyVerification() error = %v", err)
	}
	wantCode(t, f.svc.DenyVerification(ctx, code), apierr.CodeVerificationError)
	_, err := f.svc.Verify(ctx, code)
	wantCode(t, err, apierr.CodeVerificationError)
}

func TestVerifyRejectsExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.VerificationTTL = time.Nanosecond
	ctx := context.Background()

	if err := f.svc.Register(ctx, Registration{Email: "old@example.com", Password: "pw", FirstName: "Old"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	time.Sleep(time.Millisecond)
	_, err := f.svc.Verify(ctx, f.mailer.code("old@example.com"))
	wantCode(t, err, apierr.CodeVerificationError)
}

// expire backdates the pending registration for email past the default
// verification window.
func (f *fixture) expire(t *testing.T, email string) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(),
		`UPDATE pending_registrations SET created_at = ? WHERE email = ?`,
		time.Now().UTC().Add(-72*time.Hour), email)
	if err != nil {
		t.Fatalf("backdating registration: %v", err)
	}
}

func TestResendAfterExpiryMailsFreshCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "late@example.com"

	if err := f.svc.Register(ctx, Registration{Email: email, Password: "pw", FirstName: "Late"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	stale := f.mailer.code(email)
	f.expire(t, email)

	_, err := f.svc.Verify(ctx, stale)
	wantCode(t, err, apierr.CodeVerificationError)

	if err := f.svc.ResendVerification(ctx, email); err != nil {
		t.Fatalf("ResendVerification() error = %v", err)
	}
	fresh := f.mailer.code(email)
	if fresh == "" || fresh == stale {
		t.Fatalf("resent code = %q, want a new code", fresh)
	}

	_, err = f.svc.Verify(ctx, stale)
	wantCode(t, err, apierr.CodeVerificationError)
	user, err := f.svc.Verify(ctx, fresh)
	if err != nil {
		t.Fatalf("Verify(resent code) error = %v", err)
	}
	if user.Email != email {
		t.Fatalf("Verify() email = %q, want %q", user.Email, email)
	}
}

func TestResendBeforeExpiryKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "early@example.com"

	if err := f.svc.Register(ctx, Registration{Email: email, Password: "pw", FirstName: "Early"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	code := f.mailer.code(email)
	if err := f.svc.ResendVerification(ctx, email); err != nil {
		t.Fatalf("ResendVerification() error = %v", err)
	}
	if got := f.mailer.code(email); got != code {
		t.Fatalf("resent code = %q, want %q", got, code)
	}
}

func TestRegisterAgainAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "retry@example.com"

	if err := f.svc.Register(ctx, Registration{Email: email, Password: "first", FirstName: "Retry"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	stale := f.mailer.code(email)
	f.expire(t, email)

	if err := f.svc.Register(ctx, Registration{Email: email, Password: "second", FirstName: "Retry"}); err != nil {
		t.Fatalf("Register() after expiry error = %v", err)
	}
	_, err := f.svc.Login(ctx, email, "second")
	wantCode(t, err, apierr.CodeEmailNotVerified)

	fresh := f.mailer.code(email)
	if fresh == stale {
		t.Fatal("Register() after expiry reused the old code")
	}
	if _, err := f.svc.Verify(ctx, fresh); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := f.svc.Login(ctx, email, "second"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func TestResolveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.user(t, "Ann")

	if _, err := f.svc.UpdateSettings(ctx, ann, Settings{ScreenName: ptr("ann.lee")}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	for _, ref := range []string{fmt.Sprint(ann.ID), fmt.Sprintf("user%d", ann.ID), "ann.lee"} {
		got, err := f.svc.ResolveUser(ctx, ref)
		if err != nil {
			t.Fatalf("ResolveUser(%q) error = %v", ref, err)
		}
		if got.ID != ann.ID {
			t.Fatalf("ResolveUser(%q) = %d, want %d", ref, got.ID, ann.ID)
		}
	}

	_, err := f.svc.ResolveUser(ctx, "ghost")
	wantCode(t, err, apierr.CodeUserNotFound)
	_, err = f.svc.ResolveUser(ctx, "999")
	wantCode(t, err, apierr.CodeUserNotFound)
}

func TestFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")

	_, err := f.svc.AddFriend(ctx, ann, ann.ID)
	wantCode(t, err, apierr.CodeInvalidArgument)

	mutual, err := f.svc.AddFriend(ctx, ann, bob.ID)
	if err != nil || mutual {
		t.Fatalf("AddFriend() = %v, %v; want false", mutual, err)
	}
	_, err = f.svc.AddFriend(ctx, ann, bob.ID)
	wantCode(t, err, apierr.CodeAlreadyFriends)

	mutual, err = f.svc.AddFriend(ctx, bob, ann.ID)
	if err != nil || !mutual {
		t.Fatalf("AddFriend() reverse = %v, %v; want true", mutual, err)
	}

	lists, err := f.svc.Friends(ctx, ann.ID)
	if err != nil {
		t.Fatalf("Friends() error = %v", err)
	}
	if len(lists.Mutual) != 1 || lists.Mutual[0].ID != bob.ID {
		t.Fatalf("Friends().Mutual = %v", lists.Mutual)
	}

	wasMutual, err := f.svc.RemoveFriend(ctx, ann, bob.ID)
	if err != nil || !wasMutual {
		t.Fatalf("RemoveFriend() = %v, %v; want true", wasMutual, err)
	}
	wasMutual, err = f.svc.RemoveFriend(ctx, ann, bob.ID)
	if err != nil || wasMutual {
		t.Fatalf("RemoveFriend() again = %v, %v; want false", wasMutual, err)
	}

	want := []string{
		fmt.Sprintf("friend_request from=%d to=%d mutual=false", ann.ID, bob.ID),
		fmt.Sprintf("friend_request from=%d to=%d mutual=true", bob.ID, ann.ID),
		fmt.Sprintf("friend_removed from=%d to=%d requested=true", ann.ID, bob.ID),
		fmt.Sprintf("friend_removed from=%d to=%d requested=false", ann.ID, bob.ID),
	}
	got := f.notify.take()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events = %q, want %q", got, want)
	}
}

func TestCreatePrivateChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob, cid := f.user(t, "Ann"), f.user(t, "Bob"), f.user(t, "Cid")

	_, err := f.svc.CreateChat(ctx, ann, "pair", []int64{bob.ID, cid.ID}, true)
	wantCode(t, err, apierr.CodeInvalidArgument)

	chat, err := f.svc.CreateChat(ctx, ann, "pair", []int64{bob.ID}, true)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if len(chat.Members) != 2 || !chat.Private {
		t.Fatalf("CreateChat() = %+v", chat)
	}

	events := f.notify.take()
	if len(events) != 2 || !strings.HasPrefix(events[0], "chat_invite") {
		t.Fatalf("events = %q, want two chat_invite", events)
	}

	_, err = f.svc.CreateChat(ctx, bob, "again", []int64{ann.ID}, true)
	wantCode(t, err, apierr.CodeChatExists)

	found, err := f.svc.PrivateChat(ctx, bob.ID, ann)
	if err != nil || found.ID != chat.ID {
		t.Fatalf("PrivateChat() = %v, %v", found, err)
	}
	_, err = f.svc.PrivateChat(ctx, ann.ID, cid)
	wantCode(t, err, apierr.CodePeerNotFound)
	_, err = f.svc.PrivateChat(ctx, ann.ID, ann)
	wantCode(t, err, apierr.CodeInvalidArgument)

	history, err := f.svc.History(ctx, chat.Chat, DefaultPage())
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Text != `Ann Test created "pair" private chat` {
		t.Fatalf("History() = %v", history)
	}

	wantCode(t, f.svc.InviteToChat(ctx, ann, chat.Chat, cid), apierr.CodeInvalidArgument)
	wantCode(t, f.svc.LeaveChat(ctx, ann, chat.Chat), apierr.CodeInvalidArgument)
}

func TestGroupChatMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob, cid := f.user(t, "Ann"), f.user(t, "Bob"), f.user(t, "Cid")

	details, err := f.svc.CreateChat(ctx, ann, "group", []int64{bob.ID}, false)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	chat := details.Chat
	f.notify.take()

	_, err = f.svc.ChatForMember(ctx, chat.ID, cid.ID)
	wantCode(t, err, apierr.CodePeerNotFound)
	_, err = f.svc.ChatForMember(ctx, 999, ann.ID)
	wantCode(t, err, apierr.CodePeerNotFound)

	if err := f.svc.InviteToChat(ctx, ann, chat, cid); err != nil {
		t.Fatalf("InviteToChat() error = %v", err)
	}
	err = f.svc.InviteToChat(ctx, ann, chat, cid)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Cid Test is already a chat member." {
		t.Fatalf("InviteToChat() twice error = %v", err)
	}

	events := f.notify.take()
	if len(events) != 2 ||
		!strings.HasPrefix(events[0], fmt.Sprintf("chat_invite chat=%d user=%d", chat.ID, cid.ID)) ||
		events[1] != fmt.Sprintf("new_message chat=%d text=Ann Test invited Cid Test to the chat.", chat.ID) {
		t.Fatalf("events = %q", events)
	}

	if _, err := f.svc.ChatForMember(ctx, chat.ID, cid.ID); err != nil {
		t.Fatalf("ChatForMember() after invite error = %v", err)
	}

	if err := f.svc.LeaveChat(ctx, cid, chat); err != nil {
		t.Fatalf("LeaveChat() error = %v", err)
	}
	events = f.notify.take()
	if len(events) != 2 || events[0] != fmt.Sprintf("chat_removed chat=%d user=%d", chat.ID, cid.ID) {
		t.Fatalf("events = %q", events)
	}
	_, err = f.svc.ChatForMember(ctx, chat.ID, cid.ID)
	wantCode(t, err, apierr.CodePeerNotFound)
}

func TestReadTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob, cid := f.user(t, "Ann"), f.user(t, "Bob"), f.user(t, "Cid")

	details, err := f.svc.CreateChat(ctx, ann, "group", []int64{bob.ID}, false)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	chat := details.Chat

	first, err := f.svc.SendMessage(ctx, ann, chat, "one")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	second, err := f.svc.SendMessage(ctx, ann, chat, "two")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	f.notify.take()

	own, err := f.svc.Details(ctx, chat, ann.ID, false, true)
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}
	if *own.UserLastRead != second.ID {
		t.Fatalf("author last read = %d, want %d", *own.UserLastRead, second.ID)
	}

	if err := f.svc.MarkAsRead(ctx, ann, second); err != nil {
		t.Fatalf("MarkAsRead() by author error = %v", err)
	}
	if got := f.notify.take(); len(got) != 0 {
		t.Fatalf("author read emitted %q", got)
	}

	if err := f.svc.MarkAsRead(ctx, bob, second); err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}
	if err := f.svc.MarkAsRead(ctx, bob, first); err != nil {
		t.Fatalf("MarkAsRead() older error = %v", err)
	}
	got := f.notify.take()
	want := fmt.Sprintf("message_read chat=%d message=%d", chat.ID, second.ID)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("events = %q, want [%q]", got, want)
	}

	bobView, err := f.svc.Details(ctx, chat, bob.ID, false, true)
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}
	if *bobView.UserLastRead != second.ID {
		t.Fatalf("member last read = %d, want %d", *bobView.UserLastRead, second.ID)
	}

	_, err = f.svc.MessageForMember(ctx, second.ID, cid.ID)
	wantCode(t, err, apierr.CodeMessageNotFound)
	_, err = f.svc.MessageForMember(ctx, 999, ann.ID)
	wantCode(t, err, apierr.CodeMessageNotFound)
	if _, err := f.svc.MessageForMember(ctx, second.ID, bob.ID); err != nil {
		t.Fatalf("MessageForMember() error = %v", err)
	}
}

func TestListChatsOrdersByLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")

	older, err := f.svc.CreateChat(ctx, ann, "older", []int64{bob.ID}, false)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if _, err := f.svc.CreateChat(ctx, ann, "newer", []int64{bob.ID}, false); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, bob, older.Chat, "bump"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	plain, err := f.svc.ListChats(ctx, ann.ID, ChatListOptions{})
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(plain) != 2 || plain[0].Title != "older" || plain[0].UserLastRead != nil {
		t.Fatalf("ListChats() unsorted = %+v", plain)
	}

	sorted, err := f.svc.ListChats(ctx, ann.ID, ChatListOptions{ByLastMessage: true, WithLastRead: true})
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if sorted[0].Title != "older" || sorted[0].LastMessage.Text != "bump" {
		t.Fatalf("ListChats() sorted first = %+v", sorted[0])
	}
	if sorted[0].UserLastRead == nil || len(sorted[0].Members) != 2 {
		t.Fatalf("ListChats() details = %+v", sorted[0])
	}
}

func TestNewerPutsEmptyChatsLast(t *testing.T) {
	now := time.Now()
	a := &models.Message{ID: 1, Datetime: now}
	b := &models.Message{ID: 2, Datetime: now}
	c := &models.Message{ID: 3, Datetime: now.Add(-time.Hour)}

	tests := []struct {
		a, b *models.Message
		want bool
	}{
		{a: a, b: nil, want: true},
		{a: nil, b: a, want: false},
		{a: b, b: a, want: true},
		{a: c, b: a, want: false},
	}
	for _, tt := range tests {
		if got := newer(tt.a, tt.b); got != tt.want {
			t.Fatalf("newer(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSettingsAndPictures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann, bob := f.user(t, "Ann"), f.user(t, "Bob")

	updated, err := f.svc.UpdateSettings(ctx, ann, Settings{FirstName: ptr("Anna"), ScreenName: ptr("anna")})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if len(updated) != 2 || updated["first_name"] != "Anna" {
		t.Fatalf("UpdateSettings() = %v", updated)
	}

	_, err = f.svc.UpdateSettings(ctx, bob, Settings{ScreenName: ptr("anna")})
	wantCode(t, err, apierr.CodeScreenNameTaken)

	ok, err := f.svc.ScreenNameAvailable(ctx, "anna", ann.ID)
	if err != nil || !ok {
		t.Fatalf("ScreenNameAvailable(own) = %v, %v", ok, err)
	}
	ok, err = f.svc.ScreenNameAvailable(ctx, "anna", bob.ID)
	if err != nil || ok {
		t.Fatalf("ScreenNameAvailable(other) = %v, %v", ok, err)
	}

	url, err := f.svc.ChangeProfilePicture(ctx, ann, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if err != nil {
		t.Fatalf("ChangeProfilePicture() error = %v", err)
	}
	if !strings.HasPrefix(url, "https://example.com/usercontent/profile_pictures/") {
		t.Fatalf("url = %q", url)
	}

	events := f.notify.take()
	if len(events) != 2 || events[1] != fmt.Sprintf("settings_changed user=%d fields=1", ann.ID) {
		t.Fatalf("events = %q", events)
	}

	details, err := f.svc.CreateChat(ctx, ann, "pics", nil, false)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	chatURL, err := f.svc.ChangeChatImage(ctx, details.Chat, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if err != nil {
		t.Fatalf("ChangeChatImage() error = %v", err)
	}
	if details.Chat.Image == nil || *details.Chat.Image != chatURL {
		t.Fatalf("chat image = %v, want %q", details.Chat.Image, chatURL)
	}
}

func ptr(s string) *string {
	return &s
}
