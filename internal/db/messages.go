package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mrsh/internal/models"
)

const messageSelect = `SELECT messages.id, messages.chat_id, messages.author_id, messages.text, messages.created_at, ` +
	userColumns + ` FROM messages INNER JOIN users ON users.id = messages.author_id`

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, chatID, authorID int64, text string) (*models.Message, error) {
	return createMessage(ctx, r.db, chatID, authorID, text)
}

func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, messageSelect+` WHERE messages.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return m, nil
}

// List returns a page of a chat's messages ordered by id.
func (r *MessageRepository) List(ctx context.Context, chatID int64, count, offset int, antichronological bool) ([]*models.Message, error) {
	order := "ASC"
	if antichronological {
		order = "DESC"
	}

	rows, err := r.db.QueryContext(ctx,
		messageSelect+` WHERE messages.chat_id = ? ORDER BY messages.id `+order+` LIMIT ? OFFSET ?`,
		chatID, count, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Last returns the newest message in a chat, or nil when it has none.
func (r *MessageRepository) Last(ctx context.Context, chatID int64) (*models.Message, error) {
	return lastMessage(ctx, r.db, chatID)
}

func lastMessage(ctx context.Context, q querier, chatID int64) (*models.Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx,
		messageSelect+` WHERE messages.chat_id = ? ORDER BY messages.id DESC LIMIT 1`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last message: %w", err)
	}
	return m, nil
}

func createMessage(ctx context.Context, q querier, chatID, authorID int64, text string) (*models.Message, error) {
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx,
		`INSERT INTO messages (chat_id, author_id, text, created_at) VALUES (?, ?, ?, ?)`,
		chatID, authorID, text, now,
	)
	if err != nil {
		if IsForeignKeyError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("creating message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message id: %w", err)
	}

	author, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, authorID))
	if err != nil {
		return nil, fmt.Errorf("querying message author: %w", err)
	}

	return &models.Message{
		ID:       id,
		ChatID:   chatID,
		AuthorID: authorID,
		Text:     text,
		Datetime: now,
		Author:   author.Public(),
	}, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var author models.User
	var screenName, picture sql.NullString

	if err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.AuthorID,
		&m.Text,
		&m.Datetime,
		&author.ID,
		&author.FirstName,
		&author.LastName,
		&author.Email,
		&author.PasswordHash,
		&screenName,
		&picture,
		&author.CreatedAt,
	); err != nil {
		return nil, err
	}

	author.ProfilePicture = nullStringToPtr(picture)
	author.ScreenName = screenName.String
	if author.ScreenName == "" {
		author.ScreenName = models.DefaultScreenName(author.ID)
	}
	m.Author = author.Public()
	return &m, nil
}
