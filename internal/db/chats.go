package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mrsh/internal/models"
)

const chatColumns = `chats.id, chats.title, chats.private, chats.image, chats.last_read, chats.created_at`

type ChatRepository struct {
	db *DB
}

func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// NewChat describes a chat created together with its members and the system
// message announcing it.
type NewChat struct {
	Title     string
	Private   bool
	MemberIDs []int64
	AuthorID  int64
	Text      string
}

// PrivatePair is the unordered key identifying a private chat between a and b.
func PrivatePair(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Create inserts the chat, its announcement and every member in one
// transaction. Members start with the announcement marked as read. A second
// private chat for the same pair fails with ErrDuplicate.
func (r *ChatRepository) Create(ctx context.Context, nc NewChat) (*models.Chat, *models.Message, error) {
	if nc.Private && len(nc.MemberIDs) != 2 {
		return nil, nil, fmt.Errorf("private chat needs exactly 2 members, got %d", len(nc.MemberIDs))
	}

	var pair sql.NullString
	if nc.Private {
		pair = sql.NullString{String: PrivatePair(nc.MemberIDs[0], nc.MemberIDs[1]), Valid: true}
	}

	var chat *models.Chat
	var msg *models.Message

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO chats (title, private, private_pair, created_at) VALUES (?, ?, ?, ?)`,
			nc.Title, nc.Private, pair, now,
		)
		if err != nil {
			if IsUniqueConstraintError(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("creating chat: %w", err)
		}

		chatID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading chat id: %w", err)
		}
		chat = &models.Chat{ID: chatID, Title: nc.Title, Private: nc.Private, CreatedAt: now}

		msg, err = createMessage(ctx, tx, chatID, nc.AuthorID, nc.Text)
		if err != nil {
			return err
		}

		for _, memberID := range nc.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO members (chat_id, member_id, last_read, joined_at) VALUES (?, ?, ?, ?)`,
				chatID, memberID, msg.ID, now,
			); err != nil {
				if IsForeignKeyError(err) {
					return ErrNotFound
				}
				return fmt.Errorf("adding chat member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return chat, msg, nil
}

func (r *ChatRepository) FindByID(ctx context.Context, id int64) (*models.Chat, error) {
	return r.findOne(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
}

// FindPrivate returns the private chat between a and b.
func (r *ChatRepository) FindPrivate(ctx context.Context, a, b int64) (*models.Chat, error) {
	return r.findOne(ctx, `SELECT `+chatColumns+` FROM chats WHERE private_pair = ?`, PrivatePair(a, b))
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Chat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats
		 INNER JOIN members ON members.chat_id = chats.id
		 WHERE members.member_id = ?
		 ORDER BY chats.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	chats := []*models.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatIDsForUser lists the chats a user belongs to.
func (r *ChatRepository) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id FROM members WHERE member_id = ? ORDER BY chat_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chat ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChatRepository) Members(ctx context.Context, chatID int64) ([]*models.User, error) {
	return queryUsers(ctx, r.db,
		`SELECT `+userColumns+` FROM members
		 INNER JOIN users ON users.id = members.member_id
		 WHERE members.chat_id = ?
		 ORDER BY members.joined_at, users.id`,
		chatID,
	)
}

func (r *ChatRepository) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM members WHERE chat_id = ? AND member_id = ?)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts the membership with the chat's current last message
// already read and returns that message (nil for an empty chat). An existing
// membership fails with ErrDuplicate.
func (r *ChatRepository) AddMember(ctx context.Context, chatID, userID int64) (*models.Message, error) {
	var last *models.Message

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		last, err = lastMessage(ctx, tx, chatID)
		if err != nil {
			return err
		}

		var lastRead int64
		if last != nil {
			lastRead = last.ID
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO members (chat_id, member_id, last_read, joined_at) VALUES (?, ?, ?, ?)`,
			chatID, userID, lastRead, time.Now().UTC(),
		); err != nil {
			if IsUniqueConstraintError(err) {
				return ErrDuplicate
			}
			if IsForeignKeyError(err) {
				return ErrNotFound
			}
			return fmt.Errorf("adding chat member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

func (r *ChatRepository) RemoveMember(ctx context.Context, chatID, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE chat_id = ? AND member_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("removing chat member: %w", err)
	}
	return checkRowsAffected(result)
}

// MemberLastRead returns the member's read watermark, 0 for non-members.
func (r *ChatRepository) MemberLastRead(ctx context.Context, chatID, userID int64) (int64, error) {
	var lastRead int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_read FROM members WHERE chat_id = ? AND member_id = ?`,
		chatID, userID,
	).Scan(&lastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying member last read: %w", err)
	}
	return lastRead, nil
}

func (r *ChatRepository) SetImage(ctx context.Context, chatID int64, url string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE chats SET image = ? WHERE id = ?`, url, chatID)
	if err != nil {
		return fmt.Errorf("updating chat image: %w", err)
	}
	return checkRowsAffected(result)
}

// AdvanceLastRead moves the chat-wide watermark to messageID if that is
// higher than the current one. It reports whether the watermark moved.
func (r *ChatRepository) AdvanceLastRead(ctx context.Context, chatID, messageID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_read = ? WHERE id = ? AND last_read < ?`,
		messageID, chatID, messageID,
	)
	if err != nil {
		return false, fmt.Errorf("advancing chat last read: %w", err)
	}
	return rowsChanged(result)
}

// AdvanceMemberLastRead is AdvanceLastRead for a single member's watermark.
func (r *ChatRepository) AdvanceMemberLastRead(ctx context.Context, chatID, memberID, messageID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET last_read = ? WHERE chat_id = ? AND member_id = ? AND last_read < ?`,
		messageID, chatID, memberID, messageID,
	)
	if err != nil {
		return false, fmt.Errorf("advancing member last read: %w", err)
	}
	return rowsChanged(result)
}

func (r *ChatRepository) findOne(ctx context.Context, query string, args ...any) (*models.Chat, error) {
	c, err := scanChat(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	return c, nil
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var c models.Chat
	var image sql.NullString
	if err := row.Scan(&c.ID, &c.Title, &c.Private, &image, &c.LastRead, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Image = nullStringToPtr(image)
	return &c, nil
}
