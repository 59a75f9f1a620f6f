package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mrsh/internal/models"
)

type FriendRepository struct {
	db *DB
}

func NewFriendRepository(db *DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// Create inserts the sender->target edge and reports whether target->sender
// already existed. An existing edge fails with ErrDuplicate.
func (r *FriendRepository) Create(ctx context.Context, sender, target int64) (mutual bool, err error) {
	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO friends (sender, target, created_at) VALUES (?, ?, ?)`,
			sender, target, time.Now().UTC(),
		); err != nil {
			if IsUniqueConstraintError(err) {
				return ErrDuplicate
			}
			if IsForeignKeyError(err) {
				return ErrNotFound
			}
			return fmt.Errorf("creating friend edge: %w", err)
		}

		mutual, err = edgeExists(ctx, tx, target, sender)
		return err
	})
	return mutual, err
}

// Delete removes the sender->target edge if present and reports whether the
// pair was mutual before the removal.
func (r *FriendRepository) Delete(ctx context.Context, sender, target int64) (wasMutual bool, err error) {
	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM friends WHERE sender = ? AND target = ?`, sender, target)
		if err != nil {
			return fmt.Errorf("deleting friend edge: %w", err)
		}
		deleted, err := rowsChanged(result)
		if err != nil || !deleted {
			return err
		}

		wasMutual, err = edgeExists(ctx, tx, target, sender)
		return err
	})
	return wasMutual, err
}

func (r *FriendRepository) Exists(ctx context.Context, sender, target int64) (bool, error) {
	return edgeExists(ctx, r.db, sender, target)
}

// AreMutual reports whether both directed edges between a and b exist.
func (r *FriendRepository) AreMutual(ctx context.Context, a, b int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friends WHERE (sender = ? AND target = ?) OR (sender = ? AND target = ?)`,
		a, b, b, a,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking mutual friendship: %w", err)
	}
	return count == 2, nil
}

// Lists splits a user's edges into mutual, incoming-only and outgoing-only.
func (r *FriendRepository) Lists(ctx context.Context, userID int64) (*models.FriendLists, error) {
	outgoing, err := queryUsers(ctx, r.db,
		`SELECT `+userColumns+` FROM friends INNER JOIN users ON users.id = friends.target
		 WHERE friends.sender = ? ORDER BY friends.created_at, users.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	incoming, err := queryUsers(ctx, r.db,
		`SELECT `+userColumns+` FROM friends INNER JOIN users ON users.id = friends.sender
		 WHERE friends.target = ? ORDER BY friends.created_at, users.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	received := make(map[int64]bool, len(incoming))
	for _, u := range incoming {
		received[u.ID] = true
	}

	lists := &models.FriendLists{
		Mutual:   []*models.User{},
		Incoming: []*models.User{},
		Outgoing: []*models.User{},
	}
	sent := make(map[int64]bool, len(outgoing))
	for _, u := range outgoing {
		sent[u.ID] = true
		if received[u.ID] {
			lists.Mutual = append(lists.Mutual, u)
		} else {
			lists.Outgoing = append(lists.Outgoing, u)
		}
	}
	for _, u := range incoming {
		if !sent[u.ID] {
			lists.Incoming = append(lists.Incoming, u)
		}
	}
	return lists, nil
}

func edgeExists(ctx context.Context, q querier, sender, target int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE sender = ? AND target = ?)`,
		sender, target,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking friend edge: %w", err)
	}
	return exists, nil
}
