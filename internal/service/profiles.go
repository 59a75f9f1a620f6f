package service

import (
	"context"
	"errors"
	"image"

	"mrsh/internal/apierr"
	"mrsh/internal/blob"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

// Settings are the profile fields a user may change. Nil fields are kept.
type Settings struct {
	FirstName  *string
	LastName   *string
	ScreenName *string
}

// UpdateSettings applies the non-nil fields and returns them keyed by
// argument name.
func (s *Service) UpdateSettings(ctx context.Context, user *models.User, set Settings) (map[string]any, error) {
	updated := map[string]any{}
	if set.FirstName != nil {
		updated["first_name"] = *set.FirstName
	}
	if set.LastName != nil {
		updated["last_name"] = *set.LastName
	}
	if set.ScreenName != nil {
		updated["screen_name"] = *set.ScreenName
	}
	if len(updated) == 0 {
		return updated, nil
	}

	err := s.users.Update(ctx, user.ID, db.UserUpdate{
		FirstName:  set.FirstName,
		LastName:   set.LastName,
		ScreenName: set.ScreenName,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apierr.ErrScreenNameTaken
	}
	if err != nil {
		return nil, err
	}

	s.notify.SettingsChanged(user.ID, updated)
	return updated, nil
}

// ChangeProfilePicture stores img as user's picture and returns its URL.
func (s *Service) ChangeProfilePicture(ctx context.Context, user *models.User, img image.Image) (string, error) {
	url, err := s.storeImage(ctx, blob.KindProfilePicture, img)
	if err != nil {
		return "", err
	}
	if err := s.users.Update(ctx, user.ID, db.UserUpdate{ProfilePicture: &url}); err != nil {
		return "", err
	}

	s.dropImage(ctx, user.ProfilePicture)
	s.notify.SettingsChanged(user.ID, map[string]any{"profile_picture": url})
	return url, nil
}
