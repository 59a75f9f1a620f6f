// Package params declares typed argument descriptors for rpc methods. A
// descriptor coerces the raw transport value to its kind, optionally rejects
// empty values, then runs its checks in order. A check may fail, replace the
// value, or pass it through unchanged.
package params

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"strconv"
	"strings"

	"mrsh/internal/apierr"
	"mrsh/internal/rpc"
)

type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindFile
)

// Check validates or transforms an already coerced value.
type Check func(ctx context.Context, call *rpc.Call, value any) (any, error)

type Descriptor struct {
	name   string
	kind   Kind
	truthy bool
	checks []Check
}

func New(name string, kind Kind, truthy bool, checks ...Check) *Descriptor {
	return &Descriptor{name: name, kind: kind, truthy: truthy, checks: checks}
}

func (d *Descriptor) Name() string {
	return d.name
}

// With returns a copy of d with checks appended.
func (d *Descriptor) With(checks ...Check) *Descriptor {
	c := *d
	c.checks = append(append([]Check(nil), d.checks...), checks...)
	return &c
}

func (d *Descriptor) Validate(ctx context.Context, call *rpc.Call, raw any) (any, error) {
	value, ok := coerce(d.kind, raw)
	if !ok {
		return nil, apierr.InvalidArgumentType(d.name)
	}
	if d.truthy && empty(value) {
		return nil, apierr.InvalidArgument(d.name)
	}

	for _, check := range d.checks {
		next, err := check(ctx, call, value)
		if err != nil {
			return nil, err
		}
		value = next
	}
	return value, nil
}

func coerce(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindString:
		return coerceString(raw)
	case KindInt:
		return coerceInt(raw)
	case KindBool:
		return coerceBool(raw), true
	case KindFile:
		return coerceFile(raw)
	}
	return nil, false
}

func coerceString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

func coerceInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// coerceBool never fails: the usual false spellings and zero values are
// false, anything else is true.
func coerceBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch v {
		case "", "0", "false", "False":
			return false
		}
		return true
	case float64:
		return v != 0
	case int:
		return v != 0
	case nil:
		return false
	}
	return true
}

func coerceFile(raw any) ([]byte, bool) {
	switch v := raw.(type) {
	case []byte:
		return v, true
	case *multipart.FileHeader:
		f, err := v.Open()
		if err != nil {
			return nil, false
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

func empty(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case int:
		return x == 0
	case bool:
		return !x
	case []byte:
		return len(x) == 0
	}
	return v == nil
}

// SetOf splits a comma separated argument, drops empty segments, validates
// each remaining segment with inner and collects the distinct results in
// first-seen order.
func SetOf[T comparable](name string, inner rpc.Param) rpc.Param {
	return setOf[T]{name: name, inner: inner}
}

type setOf[T comparable] struct {
	name  string
	inner rpc.Param
}

func (s setOf[T]) Name() string {
	return s.name
}

func (s setOf[T]) Validate(ctx context.Context, call *rpc.Call, raw any) (any, error) {
	var parts []string
	switch v := raw.(type) {
	case []any:
		for _, el := range v {
			str, ok := coerceString(el)
			if !ok {
				return nil, apierr.InvalidArgumentType(s.name)
			}
			parts = append(parts, str)
		}
	default:
		str, ok := coerceString(raw)
		if !ok {
			return nil, apierr.InvalidArgumentType(s.name)
		}
		parts = strings.Split(str, ",")
	}

	seen := make(map[T]bool)
	out := []T{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := s.inner.Validate(ctx, call, part)
		if err != nil {
			return nil, err
		}
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("set element %s has type %T", s.name, v)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}
