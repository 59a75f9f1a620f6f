package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"mrsh/internal/apierr"
	"mrsh/internal/models"
)

// Authorizer resolves a bearer token to its owner.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*models.User, error)
}

type Dispatcher struct {
	registry *Registry
	auth     Authorizer
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, auth Authorizer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		auth:     auth,
		logger:   logger.With("component", "dispatch"),
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch resolves, authenticates, validates and runs call. Every returned
// error is an *apierr.Error; unexpected failures are logged and reported as
// invalid_request.
func (d *Dispatcher) Dispatch(ctx context.Context, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in method", "method", call.Method, "version", call.Version, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, apierr.ErrInvalidRequest
		}
	}()

	result, err = d.dispatch(ctx, call)
	if err != nil {
		apiErr, ok := apierr.From(err)
		if !ok {
			d.logger.Error("method failed", "method", call.Method, "version", call.Version, "user_id", call.UserID(), "error", err)
		}
		return nil, apiErr
	}
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, call *Call) (any, error) {
	if call.Version == "" {
		call.Version = d.registry.Latest()
	}
	if call.Args == nil {
		call.Args = Args{}
	}

	method, err := d.registry.Resolve(call.Version, call.Method)
	if err != nil {
		return nil, err
	}
	if method.Deprecated {
		return nil, apierr.ErrDeprecatedVersion
	}

	if method.Auth {
		if err := d.authenticate(ctx, call); err != nil {
			return nil, err
		}
	}

	values, err := validate(ctx, call, method)
	if err != nil {
		return nil, err
	}

	return method.Handle(ctx, call, values)
}

func (d *Dispatcher) authenticate(ctx context.Context, call *Call) error {
	if call.Token == "" {
		if raw, ok := call.Args["token"]; ok {
			s, ok := raw.(string)
			if !ok {
				return apierr.InvalidArgumentType("token")
			}
			call.Token = s
		}
	}
	if strings.TrimSpace(call.Token) == "" {
		return apierr.MissingArgument("token")
	}

	user, err := d.auth.Authorize(ctx, call.Token)
	if err != nil {
		return fmt.Errorf("authorizing call: %w", err)
	}
	call.User = user
	return nil
}

// validate checks every required argument is present before running any
// checks, then validates required and supplied optional arguments in order.
func validate(ctx context.Context, call *Call, method *Method) (Values, error) {
	for _, p := range method.Params {
		if !present(call.Args, p.Name()) {
			return nil, apierr.MissingArgument(p.Name())
		}
	}

	values := make(Values, len(method.Params)+len(method.Optional))
	for _, p := range method.Params {
		v, err := p.Validate(ctx, call, call.Args[p.Name()])
		if err != nil {
			return nil, err
		}
		values[p.Name()] = v
	}
	for _, p := range method.Optional {
		if !present(call.Args, p.Name()) {
			continue
		}
		v, err := p.Validate(ctx, call, call.Args[p.Name()])
		if err != nil {
			return nil, err
		}
		values[p.Name()] = v
	}
	return values, nil
}

func present(args Args, name string) bool {
	v, ok := args[name]
	return ok && v != nil
}
