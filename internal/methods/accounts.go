package methods

import (
	"context"

	"mrsh/internal/constants"
	"mrsh/internal/params"
	"mrsh/internal/rpc"
	"mrsh/internal/service"
)

func (h *handlers) registerUser() *rpc.Method {
	return &rpc.Method{
		Name: "register_user",
		Params: []rpc.Param{
			params.Name("first_name", true, constants.MaxNameLength),
			params.Name("last_name", true, constants.MaxNameLength),
			params.Email("email"),
			params.Secret("password", constants.MaxPasswordLength),
		},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			return nil, h.svc.Register(ctx, service.Registration{
				Email:     v.String("email"),
				Password:  v.String("password"),
				FirstName: v.String("first_name"),
				LastName:  v.String("last_name"),
			})
		},
	}
}

func (h *handlers) loginUser() *rpc.Method {
	return &rpc.Method{
		Name: "login_user",
		Params: []rpc.Param{
			params.Email("email"),
			params.Secret("password", 0),
		},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			return h.svc.Login(ctx, v.String("email"), v.String("password"))
		},
	}
}

func (h *handlers) verifyEmail() *rpc.Method {
	return &rpc.Method{
		Name:   "verify_email",
		Params: []rpc.Param{params.String("code", true, 0)},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			user, err := h.svc.Verify(ctx, v.String("code"))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"message": "User successfully verified",
				"user":    user,
			}, nil
		},
	}
}

func (h *handlers) denyVerification() *rpc.Method {
	return &rpc.Method{
		Name:   "deny_verification",
		Params: []rpc.Param{params.String("code", true, 0)},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			if err := h.svc.DenyVerification(ctx, v.String("code")); err != nil {
				return nil, err
			}
			return map[string]any{"message": "Verification successfully denied"}, nil
		},
	}
}

func (h *handlers) resendVerification() *rpc.Method {
	return &rpc.Method{
		Name:   "resend_verification",
		Params: []rpc.Param{params.Email("email")},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			return nil, h.svc.ResendVerification(ctx, v.String("email"))
		},
	}
}

func (h *handlers) logoutUser() *rpc.Method {
	return &rpc.Method{
		Name: "logout_user",
		Auth: true,
		Handle: func(ctx context.Context, call *rpc.Call, _ rpc.Values) (any, error) {
			if err := h.svc.Logout(ctx, call.UserID(), call.Token); err != nil {
				return nil, err
			}
			return map[string]any{"message": "Successfully logged out"}, nil
		},
	}
}
