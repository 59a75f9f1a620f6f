package params

import (
	"context"
	"html"
	"image"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"mrsh/internal/apierr"
	"mrsh/internal/blob"
	"mrsh/internal/constants"
	"mrsh/internal/models"
	"mrsh/internal/rpc"
)

var (
	emailValidator = validator.New()
	textPolicy     = bluemonday.StrictPolicy()
	screenNameRe   = regexp.MustCompile(`^[a-z0-9_.]+$`)
)

// UserResolver finds users by numeric id, user<id> or screen name.
type UserResolver interface {
	ResolveUser(ctx context.Context, ref string) (*models.User, error)
}

type FriendChecker interface {
	AreMutualFriends(ctx context.Context, a, b int64) (bool, error)
}

type ScreenNames interface {
	ScreenNameAvailable(ctx context.Context, screenName string, ownerID int64) (bool, error)
}

// ChatAccess loads chats and messages on behalf of a member. Both methods
// report peer_not_found / message_not_found to non-members.
type ChatAccess interface {
	ChatForMember(ctx context.Context, chatID, userID int64) (*models.Chat, error)
	MessageForMember(ctx context.Context, messageID, userID int64) (*models.Message, error)
}

// String is a string trimmed of surrounding space. maxLength 0 means
// unlimited.
func String(name string, truthy bool, maxLength int) *Descriptor {
	checks := []Check{lengthCheck(name, maxLength), trim}
	if truthy {
		checks = append(checks, nonEmpty(name))
	}
	return New(name, KindString, truthy, checks...)
}

// Secret is a required string used verbatim.
func Secret(name string, maxLength int) *Descriptor {
	return New(name, KindString, true, lengthCheck(name, maxLength))
}

// Text is a String with markup stripped. It must still be non-empty after
// sanitizing.
func Text(name string, maxLength int) *Descriptor {
	return String(name, true, maxLength).With(sanitize(name))
}

// Name is a String capitalized and free of digits.
func Name(name string, truthy bool, maxLength int) *Descriptor {
	return String(name, truthy, maxLength).With(capitalize, rejectDigits(name))
}

func Email(name string) *Descriptor {
	return String(name, true, constants.MaxEmailLength).With(lower, func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		email := v.(string)
		if err := emailValidator.Var(email, "required,email"); err != nil {
			return nil, apierr.InvalidEmail(email)
		}
		return email, nil
	})
}

// NonNegInt rejects negative values and, when max is set, values above it.
func NonNegInt(name string, max int) *Descriptor {
	return New(name, KindInt, false, func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		n := v.(int)
		if n < 0 || (max > 0 && n > max) {
			return nil, apierr.InvalidArgument(name)
		}
		return n, nil
	})
}

func Bool(name string) *Descriptor {
	return New(name, KindBool, false)
}

// ScreenName accepts a lower-cased name that is not all digits, does not
// look like a default user<id> name and is not held by another user.
func ScreenName(name string, names ScreenNames) *Descriptor {
	return String(name, true, constants.MaxScreenNameLength).With(
		func(_ context.Context, _ *rpc.Call, v any) (any, error) {
			if allDigits(v.(string)) {
				return nil, apierr.InvalidArgument(name)
			}
			return v, nil
		},
		lower,
		func(_ context.Context, _ *rpc.Call, v any) (any, error) {
			s := v.(string)
			if isDefaultScreenName(s) || !screenNameRe.MatchString(s) {
				return nil, apierr.InvalidArgument(name)
			}
			return s, nil
		},
		func(ctx context.Context, call *rpc.Call, v any) (any, error) {
			ok, err := names.ScreenNameAvailable(ctx, v.(string), call.UserID())
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, apierr.ErrScreenNameTaken
			}
			return v, nil
		},
	)
}

// UserID resolves a user reference to an id. With friends set, the target
// must be a mutual friend of the caller (or the caller).
func UserID(name string, users UserResolver, friends FriendChecker) *Descriptor {
	return UserRef(name, users, friends).With(func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		return v.(*models.User).ID, nil
	})
}

// UserRef is UserID returning the loaded user.
func UserRef(name string, users UserResolver, friends FriendChecker) *Descriptor {
	checks := []Check{
		lower,
		func(ctx context.Context, _ *rpc.Call, v any) (any, error) {
			return users.ResolveUser(ctx, v.(string))
		},
	}
	if friends != nil {
		checks = append(checks, func(ctx context.Context, call *rpc.Call, v any) (any, error) {
			target := v.(*models.User)
			if target.ID == call.UserID() {
				return v, nil
			}
			mutual, err := friends.AreMutualFriends(ctx, call.UserID(), target.ID)
			if err != nil {
				return nil, err
			}
			if !mutual {
				return nil, apierr.ErrNotFriends
			}
			return v, nil
		})
	}
	return New(name, KindString, true, checks...)
}

// ChatRef loads a chat the caller belongs to.
func ChatRef(name string, chats ChatAccess) *Descriptor {
	return New(name, KindInt, true, func(ctx context.Context, call *rpc.Call, v any) (any, error) {
		return chats.ChatForMember(ctx, int64(v.(int)), call.UserID())
	})
}

// MessageRef loads a message from a chat the caller belongs to.
func MessageRef(name string, chats ChatAccess) *Descriptor {
	return New(name, KindInt, true, func(ctx context.Context, call *rpc.Call, v any) (any, error) {
		return chats.MessageForMember(ctx, int64(v.(int)), call.UserID())
	})
}

// Image decodes an uploaded picture and crops and scales it to the square
// profile picture size.
func Image(name string) *Descriptor {
	return New(name, KindFile, true,
		func(_ context.Context, _ *rpc.Call, v any) (any, error) {
			img, err := blob.DecodeImage(v.([]byte))
			if err != nil {
				return nil, apierr.ErrInvalidImage
			}
			return img, nil
		},
		func(_ context.Context, _ *rpc.Call, v any) (any, error) {
			return blob.SquareImage(v.(image.Image), constants.ProfilePictureSize), nil
		},
	)
}

func lengthCheck(name string, maxLength int) Check {
	return func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		if maxLength > 0 && utf8.RuneCountInString(v.(string)) > maxLength {
			return nil, apierr.InvalidArgumentf("Invalid argument: %s. Argument length exceeds %d.", name, maxLength)
		}
		return v, nil
	}
}

func trim(_ context.Context, _ *rpc.Call, v any) (any, error) {
	return strings.TrimSpace(v.(string)), nil
}

func nonEmpty(name string) Check {
	return func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		if v.(string) == "" {
			return nil, apierr.InvalidArgument(name)
		}
		return v, nil
	}
}

func lower(_ context.Context, _ *rpc.Call, v any) (any, error) {
	return strings.ToLower(v.(string)), nil
}

func capitalize(_ context.Context, _ *rpc.Call, v any) (any, error) {
	s := v.(string)
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s, nil
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:]), nil
}

func rejectDigits(name string) Check {
	return func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		if strings.IndexFunc(v.(string), unicode.IsDigit) >= 0 {
			return nil, apierr.InvalidArgument(name)
		}
		return v, nil
	}
}

func sanitize(name string) Check {
	return func(_ context.Context, _ *rpc.Call, v any) (any, error) {
		clean := strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(v.(string))))
		if clean == "" {
			return nil, apierr.InvalidArgument(name)
		}
		return clean, nil
	}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isDefaultScreenName(s string) bool {
	rest, ok := strings.CutPrefix(s, "user")
	return ok && allDigits(rest)
}
