// Package rooms names broadcast groups and routes sessions in and out of them.
package rooms

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSameUser        = fmt.Errorf("%w: conversation needs two distinct users", ErrInvalidArgument)
)

// PersonalRoom is the room every connection of userID joins on connect.
func PersonalRoom(userID uint64) string {
	return "user_" + strconv.FormatUint(userID, 10)
}

// ConversationRoom names the room shared by a and b. It is symmetric in its arguments.
func ConversationRoom(a, b uint64) (string, error) {
	if a == b {
		return "", ErrSameUser
	}
	if a > b {
		a, b = b, a
	}
	return "conversation_" + strconv.FormatUint(a, 10) + "_" + strconv.FormatUint(b, 10), nil
}

// Groups is the transport's group primitive.
type Groups interface {
	JoinRoom(sessionID, room string)
	LeaveRoom(sessionID, room string)
}

// Router joins and leaves sessions. Both operations are idempotent.
type Router struct {
	groups Groups
}

func NewRouter(g Groups) *Router {
	return &Router{groups: g}
}

func (r *Router) Join(sessionID, room string) {
	r.groups.JoinRoom(sessionID, room)
}

func (r *Router) Leave(sessionID, room string) {
	r.groups.LeaveRoom(sessionID, room)
}

func (r *Router) JoinPersonal(sessionID string, userID uint64) {
	r.Join(sessionID, PersonalRoom(userID))
}

func (r *Router) JoinConversation(sessionID string, self, other uint64) error {
	room, err := ConversationRoom(self, other)
	if err != nil {
		return err
	}
	r.Join(sessionID, room)
	return nil
}

func (r *Router) LeaveConversation(sessionID string, self, other uint64) error {
	room, err := ConversationRoom(self, other)
	if err != nil {
		return err
	}
	r.Leave(sessionID, room)
	return nil
}
