// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen = 64
	MaxNickLen   = 36
)

var (
	ErrNickTooLong   = errors.New("nick too long")
	ErrNickEmpty     = errors.New("nick empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the account identity of a person. It survives reconnects.
type UserID string

// TransportID is the signaling-server identity of one connected client.
// It changes on every reconnect and is what offers/answers are addressed to.
type TransportID string

type User struct {
	ID   UserID `json:"id"`
	Nick string `json:"nick"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, nick string) (*User, error) {
	if id == "" {
		id = UserID(uuid.NewString())
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: id}
	if err := u.SetNick(nick); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetNick(nick string) error {
	nick = strings.TrimSpace(nick)
	if len(nick) == 0 {
		return ErrNickEmpty
	}
	if len(nick) > MaxNickLen {
		return ErrNickTooLong
	}
	u.Nick = nick
	return nil
}

// SanitizeNick clips a remote-supplied nick so it can be shown safely.
// Remote nicks are never rejected, only trimmed.
func SanitizeNick(nick string) string {
	nick = strings.TrimSpace(nick)
	if len(nick) > MaxNickLen {
		nick = nick[:MaxNickLen]
	}
	return nick
}
