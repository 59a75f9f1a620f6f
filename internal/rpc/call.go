package rpc

import (
	"image"

	"mrsh/internal/models"
)

// Args is the flat argument mapping a transport hands to the dispatcher.
type Args map[string]any

// Call carries one request through dispatch. User is set once the session
// token has been resolved.
type Call struct {
	Version string
	Method  string
	Args    Args
	Token   string
	User    *models.User
}

// UserID returns the authenticated caller's id, or 0.
func (c *Call) UserID() int64 {
	if c.User == nil {
		return 0
	}
	return c.User.ID
}

// Values holds validated arguments keyed by parameter name. Optional
// parameters that were not supplied are absent.
type Values map[string]any

func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the argument or def when it was not supplied.
func (v Values) Int(name string, def int) int {
	n, ok := v[name].(int)
	if !ok {
		return def
	}
	return n
}

func (v Values) ID(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

func (v Values) Bool(name string, def bool) bool {
	b, ok := v[name].(bool)
	if !ok {
		return def
	}
	return b
}

func (v Values) IDs(name string) []int64 {
	ids, _ := v[name].([]int64)
	return ids
}

func (v Values) User(name string) *models.User {
	u, _ := v[name].(*models.User)
	return u
}

func (v Values) Chat(name string) *models.Chat {
	c, _ := v[name].(*models.Chat)
	return c
}

func (v Values) Message(name string) *models.Message {
	m, _ := v[name].(*models.Message)
	return m
}

func (v Values) Bytes(name string) []byte {
	b, _ := v[name].([]byte)
	return b
}

func (v Values) Image(name string) image.Image {
	img, _ := v[name].(image.Image)
	return img
}
