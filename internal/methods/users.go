package methods

import (
	"context"

	"mrsh/internal/constants"
	"mrsh/internal/models"
	"mrsh/internal/params"
	"mrsh/internal/rpc"
	"mrsh/internal/service"
)

// target returns the user named by user_id, or the caller when absent.
func target(call *rpc.Call, v rpc.Values) *models.User {
	if u := v.User("user_id"); u != nil && u.ID != call.UserID() {
		return u.Public()
	}
	return call.User
}

func (h *handlers) getUser() *rpc.Method {
	return &rpc.Method{
		Name:     "get_user",
		Auth:     true,
		Optional: []rpc.Param{params.UserRef("user_id", h.svc, nil)},
		Handle: func(_ context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return target(call, v), nil
		},
	}
}

func (h *handlers) getFriends() *rpc.Method {
	return &rpc.Method{
		Name:     "get_friends",
		Auth:     true,
		Optional: []rpc.Param{params.UserRef("user_id", h.svc, nil)},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return h.svc.Friends(ctx, target(call, v).ID)
		},
	}
}

func (h *handlers) addFriend() *rpc.Method {
	return &rpc.Method{
		Name:   "add_friend",
		Auth:   true,
		Params: []rpc.Param{params.UserID("user_id", h.svc, nil)},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			mutual, err := h.svc.AddFriend(ctx, call.User, v.ID("user_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"mutual": mutual}, nil
		},
	}
}

// removeFriend does not require a mutual friendship so a pending request can
// be withdrawn.
func (h *handlers) removeFriend() *rpc.Method {
	return &rpc.Method{
		Name:   "remove_friend",
		Auth:   true,
		Params: []rpc.Param{params.UserID("user_id", h.svc, nil)},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			wasMutual, err := h.svc.RemoveFriend(ctx, call.User, v.ID("user_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"requested": wasMutual}, nil
		},
	}
}

func (h *handlers) setSettings() *rpc.Method {
	return &rpc.Method{
		Name: "set_settings",
		Auth: true,
		Optional: []rpc.Param{
			params.Name("first_name", true, constants.MaxNameLength),
			params.Name("last_name", true, constants.MaxNameLength),
			params.ScreenName("screen_name", h.svc),
		},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			var set service.Settings
			for name, field := range map[string]**string{
				"first_name":  &set.FirstName,
				"last_name":   &set.LastName,
				"screen_name": &set.ScreenName,
			} {
				if v.Has(name) {
					s := v.String(name)
					*field = &s
				}
			}
			updated, err := h.svc.UpdateSettings(ctx, call.User, set)
			if err != nil {
				return nil, err
			}
			return map[string]any{"updated": updated}, nil
		},
	}
}

func (h *handlers) changeProfilePicture() *rpc.Method {
	return &rpc.Method{
		Name:   "change_profile_picture",
		Auth:   true,
		Params: []rpc.Param{params.Image("file")},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			url, err := h.svc.ChangeProfilePicture(ctx, call.User, v.Image("file"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": url}, nil
		},
	}
}
