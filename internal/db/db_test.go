package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mrsh/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createTestUser(t *testing.T, database *DB, name string) *models.User {
	t.Helper()
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)
	p := &models.PendingRegistration{
		Email:            name + "@example.com",
		PasswordHash:     "hash",
		VerificationCode: "code-" + name,
		FirstName:        name,
		LastName:         "Test",
	}
	if err := pending.Create(ctx, p, time.Time{}); err != nil {
		t.Fatalf("pending.Create() error = %v", err)
	}
	u, err := pending.Promote(ctx, p.VerificationCode, time.Time{})
	if err != nil {
		t.Fatalf("pending.Promote() error = %v", err)
	}
	return u
}

func TestMigrationsApplyOnce(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	version, err := database.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version < 1 {
		t.Fatalf("MigrationVersion() = %d, want >= 1", version)
	}
}

func TestPendingRegistrationUniquePerEmail(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)

	first := &models.PendingRegistration{Email: "a@example.com", PasswordHash: "h", VerificationCode: "c1", FirstName: "A"}
	if err := pending.Create(ctx, first, time.Time{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second := &models.PendingRegistration{Email: "a@example.com", PasswordHash: "h", VerificationCode: "c2", FirstName: "A"}
	if err := pending.Create(ctx, second, time.Time{}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() duplicate pending error = %v, want ErrDuplicate", err)
	}

	if _, err := pending.Promote(ctx, "c1", time.Time{}); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}

	third := &models.PendingRegistration{Email: "a@example.com", PasswordHash: "h", VerificationCode: "c3", FirstName: "A"}
	if err := pending.Create(ctx, third, time.Time{}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() for registered email error = %v, want ErrDuplicate", err)
	}
}

func TestPromoteConsumesCode(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)
	users := NewUserRepository(database)

	p := &models.PendingRegistration{Email: "b@example.com", PasswordHash: "h", VerificationCode: "code", FirstName: "B", LastName: "C"}
	if err := pending.Create(ctx, p, time.Time{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	u, err := pending.Promote(ctx, "code", time.Time{})
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if u.ScreenName != fmt.Sprintf("user%d", u.ID) {
		t.Fatalf("ScreenName = %q, want default", u.ScreenName)
	}

	if _, err := pending.Promote(ctx, "code", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Promote() error = %v, want ErrNotFound", err)
	}

	stored, err := users.FindByEmail(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if stored.ID != u.ID || stored.FullName() != "B C" {
		t.Fatalf("stored user = %+v, want id %d named B C", stored, u.ID)
	}
}

func TestPromoteRejectsExpired(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)

	p := &models.PendingRegistration{Email: "e@example.com", PasswordHash: "h", VerificationCode: "old", FirstName: "E"}
	if err := pending.Create(ctx, p, time.Time{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := pending.Promote(ctx, "old", time.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Promote() error = %v, want ErrNotFound", err)
	}

	deleted, err := pending.DeleteExpired(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("DeleteExpired() = %d, want 1", deleted)
	}
}

func TestCreateReplacesExpiredRegistration(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)

	old := &models.PendingRegistration{Email: "x@example.com", PasswordHash: "h", VerificationCode: "old", FirstName: "X"}
	if err := pending.Create(ctx, old, time.Time{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	again := &models.PendingRegistration{Email: "x@example.com", PasswordHash: "h2", VerificationCode: "new", FirstName: "X"}
	if err := pending.Create(ctx, again, time.Now().Add(-time.Hour)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() over live registration error = %v, want ErrDuplicate", err)
	}
	if err := pending.Create(ctx, again, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() over expired registration error = %v", err)
	}

	if _, err := pending.FindByCode(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByCode(old) error = %v, want ErrNotFound", err)
	}
	got, err := pending.FindByEmail(ctx, "x@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got.VerificationCode != "new" || got.PasswordHash != "h2" {
		t.Fatalf("FindByEmail() = %+v, want the replacement", got)
	}
}

func TestRefreshRestartsExpiry(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingRegistrationRepository(database)

	p := &models.PendingRegistration{Email: "r@example.com", PasswordHash: "h", VerificationCode: "first", FirstName: "R"}
	if err := pending.Create(ctx, p, time.Time{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	cutoff := time.Now().UTC()

	refreshed, err := pending.Refresh(ctx, "r@example.com", "second")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.VerificationCode != "second" || refreshed.CreatedAt.Before(cutoff) {
		t.Fatalf("Refresh() = %+v, want new code created after %v", refreshed, cutoff)
	}
	if _, err := pending.Promote(ctx, "first", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Promote(first) error = %v, want ErrNotFound", err)
	}
	if _, err := pending.Promote(ctx, "second", cutoff); err != nil {
		t.Fatalf("Promote(second) error = %v", err)
	}

	if _, err := pending.Refresh(ctx, "missing@example.com", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Refresh(missing) error = %v, want ErrNotFound", err)
	}
}

func TestScreenNameUpdateDuplicate(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(database)
	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	name := "ally"
	if err := users.Update(ctx, alice.ID, UserUpdate{ScreenName: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := users.Update(ctx, bob.ID, UserUpdate{ScreenName: &name}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Update() duplicate error = %v, want ErrDuplicate", err)
	}

	found, err := users.FindByScreenName(ctx, "ally")
	if err != nil {
		t.Fatalf("FindByScreenName() error = %v", err)
	}
	if found.ID != alice.ID {
		t.Fatalf("FindByScreenName() id = %d, want %d", found.ID, alice.ID)
	}
}

func TestTokenLookupBySelector(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	tokens := NewTokenRepository(database)
	alice := createTestUser(t, database, "alice")

	if err := tokens.Create(ctx, alice.ID, "sel", "hash"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	tok, err := tokens.FindBySelector(ctx, "sel")
	if err != nil {
		t.Fatalf("FindBySelector() error = %v", err)
	}
	if tok.UserID != alice.ID || tok.ValidatorHash != "hash" {
		t.Fatalf("token = %+v", tok)
	}

	if err := tokens.DeleteBySelector(ctx, "sel"); err != nil {
		t.Fatalf("DeleteBySelector() error = %v", err)
	}
	if _, err := tokens.FindBySelector(ctx, "sel"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindBySelector() after delete error = %v, want ErrNotFound", err)
	}
}

func TestFriendEdges(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	friends := NewFriendRepository(database)
	a := createTestUser(t, database, "a")
	b := createTestUser(t, database, "b")
	c := createTestUser(t, database, "c")

	mutual, err := friends.Create(ctx, a.ID, b.ID)
	if err != nil || mutual {
		t.Fatalf("Create(a,b) = %v, %v; want false, nil", mutual, err)
	}
	if _, err := friends.Create(ctx, a.ID, b.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create(a,b) again error = %v, want ErrDuplicate", err)
	}
	mutual, err = friends.Create(ctx, b.ID, a.ID)
	if err != nil || !mutual {
		t.Fatalf("Create(b,a) = %v, %v; want true, nil", mutual, err)
	}
	if _, err := friends.Create(ctx, c.ID, a.ID); err != nil {
		t.Fatalf("Create(c,a) error = %v", err)
	}

	lists, err := friends.Lists(ctx, a.ID)
	if err != nil {
		t.Fatalf("Lists() error = %v", err)
	}
	if len(lists.Mutual) != 1 || lists.Mutual[0].ID != b.ID {
		t.Fatalf("Mutual = %v, want [b]", lists.Mutual)
	}
	if len(lists.Incoming) != 1 || lists.Incoming[0].ID != c.ID {
		t.Fatalf("Incoming = %v, want [c]", lists.Incoming)
	}
	if len(lists.Outgoing) != 0 {
		t.Fatalf("Outgoing = %v, want empty", lists.Outgoing)
	}

	wasMutual, err := friends.Delete(ctx, a.ID, b.ID)
	if err != nil || !wasMutual {
		t.Fatalf("Delete(a,b) = %v, %v; want true, nil", wasMutual, err)
	}
	wasMutual, err = friends.Delete(ctx, a.ID, b.ID)
	if err != nil || wasMutual {
		t.Fatalf("Delete(a,b) again = %v, %v; want false, nil", wasMutual, err)
	}
}

func TestPrivateChatPairIsUnordered(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chats := NewChatRepository(database)
	a := createTestUser(t, database, "a")
	b := createTestUser(t, database, "b")

	chat, msg, err := chats.Create(ctx, NewChat{Title: "ab", Private: true, MemberIDs: []int64{a.ID, b.ID}, AuthorID: a.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if msg.Author == nil || msg.Author.ID != a.ID {
		t.Fatalf("message author = %+v, want a", msg.Author)
	}

	_, _, err = chats.Create(ctx, NewChat{Title: "ba", Private: true, MemberIDs: []int64{b.ID, a.ID}, AuthorID: b.ID, Text: "hi"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create() reversed pair error = %v, want ErrDuplicate", err)
	}

	found, err := chats.FindPrivate(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatalf("FindPrivate() error = %v", err)
	}
	if found.ID != chat.ID {
		t.Fatalf("FindPrivate() id = %d, want %d", found.ID, chat.ID)
	}

	lastRead, err := chats.MemberLastRead(ctx, chat.ID, b.ID)
	if err != nil {
		t.Fatalf("MemberLastRead() error = %v", err)
	}
	if lastRead != msg.ID {
		t.Fatalf("MemberLastRead() = %d, want %d", lastRead, msg.ID)
	}
}

func TestWatermarksOnlyAdvance(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chats := NewChatRepository(database)
	a := createTestUser(t, database, "a")

	chat, _, err := chats.Create(ctx, NewChat{Title: "g", MemberIDs: []int64{a.ID}, AuthorID: a.ID, Text: "created"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	steps := []struct {
		id   int64
		want bool
		mark int64
	}{
		{id: 8, want: true, mark: 8},
		{id: 5, want: false, mark: 8},
		{id: 8, want: false, mark: 8},
		{id: 10, want: true, mark: 10},
	}

	for _, step := range steps {
		moved, err := chats.AdvanceLastRead(ctx, chat.ID, step.id)
		if err != nil {
			t.Fatalf("AdvanceLastRead(%d) error = %v", step.id, err)
		}
		if moved != step.want {
			t.Fatalf("AdvanceLastRead(%d) = %v, want %v", step.id, moved, step.want)
		}
		got, err := chats.FindByID(ctx, chat.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got.LastRead != step.mark {
			t.Fatalf("LastRead after %d = %d, want %d", step.id, got.LastRead, step.mark)
		}

		if _, err := chats.AdvanceMemberLastRead(ctx, chat.ID, a.ID, step.id); err != nil {
			t.Fatalf("AdvanceMemberLastRead(%d) error = %v", step.id, err)
		}
		memberMark, err := chats.MemberLastRead(ctx, chat.ID, a.ID)
		if err != nil {
			t.Fatalf("MemberLastRead() error = %v", err)
		}
		if memberMark != step.mark {
			t.Fatalf("member mark after %d = %d, want %d", step.id, memberMark, step.mark)
		}
	}
}

func TestAddMemberAndMessagesPaging(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	chats := NewChatRepository(database)
	messages := NewMessageRepository(database)
	a := createTestUser(t, database, "a")
	b := createTestUser(t, database, "b")

	chat, _, err := chats.Create(ctx, NewChat{Title: "g", MemberIDs: []int64{a.ID}, AuthorID: a.ID, Text: "created"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := messages.Create(ctx, chat.ID, a.ID, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("messages.Create() error = %v", err)
		}
	}

	last, err := chats.AddMember(ctx, chat.ID, b.ID)
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if last == nil || last.Text != "m2" {
		t.Fatalf("AddMember() last = %+v, want m2", last)
	}
	if _, err := chats.AddMember(ctx, chat.ID, b.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("AddMember() again error = %v, want ErrDuplicate", err)
	}

	page, err := messages.List(ctx, chat.ID, 2, 0, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 || page[0].Text != "m2" || page[1].Text != "m1" {
		t.Fatalf("List(antichronological) = %v", page)
	}

	page, err = messages.List(ctx, chat.ID, 2, 1, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 || page[0].Text != "m0" || page[1].Text != "m1" {
		t.Fatalf("List(chronological, offset 1) = %v", page)
	}

	members, err := chats.Members(ctx, chat.ID)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Members() = %d, want 2", len(members))
	}
	for _, m := range members {
		if m.Email != "" {
			t.Fatalf("member %d leaked email", m.ID)
		}
	}

	if err := chats.RemoveMember(ctx, chat.ID, b.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if err := chats.RemoveMember(ctx, chat.ID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveMember() again error = %v, want ErrNotFound", err)
	}
}
