// Package apierr defines the caller-facing error taxonomy. Every failure that
// crosses the dispatch boundary is an *Error carrying a stable numeric code, a
// machine-readable string and a human-readable message.
package apierr

import (
	"errors"
	"fmt"

	"mrsh/internal/constants"
)

const latestVersion = constants.LatestVersion

type Code int

const (
	CodeInvalidRequest Code = iota
	CodeInvalidVersion
	CodeInvalidMethod
	CodeArgumentsError
	CodeInvalidArgument
	CodeMissingArgument
	CodeInvalidArgumentType
	CodeInvalidToken
	CodeUserNotFound
	CodePeerNotFound
	CodeDeprecatedVersion
	CodeEmailAlreadyRegistered
	CodeEmailNotVerified
	CodeUserDoesNotExist
	CodeWrongPassword
	CodeVerificationError
	CodeAlreadyVerified
	CodeAlreadyFriends
	CodeNotFriends
	CodeMessageNotFound
	CodeInvalidEmail
	CodeInvalidImage
	CodeScreenNameTaken
	CodeChatExists
	CodeRateLimited
)

type Error struct {
	Code    Code   `json:"code"`
	String  string `json:"string"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.String, e.Code, e.Message)
}

// Is matches on code so errors.Is(err, apierr.ErrInvalidToken) works against
// freshly built values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, str, message string) *Error {
	return &Error{Code: code, String: str, Message: message}
}

var (
	ErrInvalidRequest         = newError(CodeInvalidRequest, "invalid_request", "Invalid request.")
	ErrInvalidVersion         = newError(CodeInvalidVersion, "invalid_version", "Invalid version. Current latest version is "+latestVersion+".")
	ErrInvalidMethod          = newError(CodeInvalidMethod, "invalid_method", "No such method found for specified version or any of the older ones.")
	ErrArguments              = newError(CodeArgumentsError, "invalid_arguments", "Invalid arguments.")
	ErrInvalidToken           = newError(CodeInvalidToken, "invalid_token", "Invalid token.")
	ErrDeprecatedVersion      = newError(CodeDeprecatedVersion, "deprecated_version", "Specified version is deprecated. Current latest version is "+latestVersion+".")
	ErrEmailAlreadyRegistered = newError(CodeEmailAlreadyRegistered, "email_already_registered", "This email is already registered.")
	ErrEmailNotVerified       = newError(CodeEmailNotVerified, "email_not_verified", "This email is not verified. Please follow the link sent in email.")
	ErrUserDoesNotExist       = newError(CodeUserDoesNotExist, "user_does_not_exist", "User with such email address does not exist.")
	ErrWrongPassword          = newError(CodeWrongPassword, "wrong_password", "Invalid password.")
	ErrVerification           = newError(CodeVerificationError, "verification_error", "Verification error.")
	ErrAlreadyVerified        = newError(CodeAlreadyVerified, "already_verified", "Email already verified.")
	ErrAlreadyFriends         = newError(CodeAlreadyFriends, "already_friends", "You are already friends with target user.")
	ErrNotFriends             = newError(CodeNotFriends, "not_friends", "You are not friends with target user.")
	ErrInvalidImage           = newError(CodeInvalidImage, "invalid_image", "Unidentified image format.")
	ErrScreenNameTaken        = newError(CodeScreenNameTaken, "screen_name_taken", "This screen name is already taken.")
	ErrChatExists             = newError(CodeChatExists, "chat_exists", "Private chat with specified users already exists.")
	ErrRateLimited            = newError(CodeRateLimited, "rate_limited", "Too many requests.")
)

// InvalidArgument reports a value that failed a check. The argument is the
// parameter name or the offending value.
func InvalidArgument(arg any) *Error {
	return newError(CodeInvalidArgument, "invalid_argument", fmt.Sprintf("Invalid argument: %v", arg))
}

// InvalidArgumentf builds an invalid_argument error with a custom template.
func InvalidArgumentf(format string, args ...any) *Error {
	return newError(CodeInvalidArgument, "invalid_argument", fmt.Sprintf(format, args...))
}

func MissingArgument(name string) *Error {
	return newError(CodeMissingArgument, "missing_argument", fmt.Sprintf("Missing required argument: %s", name))
}

func InvalidEmail(email string) *Error {
	return newError(CodeInvalidEmail, "invalid_email", fmt.Sprintf("Invalid email: %q.", email))
}

func InvalidArgumentType(name string) *Error {
	return newError(CodeInvalidArgumentType, "invalid_argument_type", fmt.Sprintf("Invalid argument type for argument: %s", name))
}

func UserNotFound(id any) *Error {
	return newError(CodeUserNotFound, "user_not_found", fmt.Sprintf("User with id %v was not found.", id))
}

func PeerNotFound(id any) *Error {
	return newError(CodePeerNotFound, "peer_not_found", fmt.Sprintf("Chat with id %v was not found.", id))
}

func MessageNotFound(id any) *Error {
	return newError(CodeMessageNotFound, "message_not_found", fmt.Sprintf("Message with id %v was not found.", id))
}

// From extracts the *Error in err's chain. Anything else becomes
// invalid_request and ok is false so the caller can log the cause.
func From(err error) (apiErr *Error, ok bool) {
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return ErrInvalidRequest, false
}
