package service

import (
	"context"
	"errors"

	"mrsh/internal/apierr"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

// AddFriend sends a friend request from user to targetID and reports whether
// it completed a mutual friendship.
func (s *Service) AddFriend(ctx context.Context, user *models.User, targetID int64) (bool, error) {
	if targetID == user.ID {
		return false, apierr.InvalidArgument("user_id")
	}

	mutual, err := s.friends.Create(ctx, user.ID, targetID)
	switch {
	case errors.Is(err, db.ErrDuplicate):
		return false, apierr.ErrAlreadyFriends
	case errors.Is(err, db.ErrNotFound):
		return false, apierr.UserNotFound(targetID)
	case err != nil:
		return false, err
	}

	s.notify.FriendRequest(user.Public(), targetID, mutual)
	return mutual, nil
}

// RemoveFriend withdraws user's edge to targetID. Removing an absent edge is
// a no-op. It reports whether the pair was mutual before.
func (s *Service) RemoveFriend(ctx context.Context, user *models.User, targetID int64) (bool, error) {
	if targetID == user.ID {
		return false, apierr.InvalidArgument("user_id")
	}

	wasMutual, err := s.friends.Delete(ctx, user.ID, targetID)
	if err != nil {
		return false, err
	}

	s.notify.FriendRemoved(user.Public(), targetID, wasMutual)
	return wasMutual, nil
}

func (s *Service) AreMutualFriends(ctx context.Context, a, b int64) (bool, error) {
	return s.friends.AreMutual(ctx, a, b)
}

func (s *Service) Friends(ctx context.Context, userID int64) (*models.FriendLists, error) {
	return s.friends.Lists(ctx, userID)
}
