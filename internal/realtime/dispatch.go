package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client -> server event names.
const (
	CmdJoinConversation  = "join_conversation"
	CmdLeaveConversation = "leave_conversation"
	CmdSendMessage       = "send_message"
	CmdTyping            = "typing"
	CmdReadMessage       = "read_message"
	CmdGetOnlineStatus   = "get_online_status"
)

// Reply is the acknowledgement body returned to the calling connection only.
type Reply struct {
	Success bool            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
	Status  map[uint64]bool `json:"status,omitempty"`
}

type peerReq struct {
	UserID uint64 `json:"user_id"`
}

type sendReq struct {
	RecipientID     uint64 `json:"recipient_id"`
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id"`
}

type typingReq struct {
	RecipientID uint64 `json:"recipient_id"`
	Typing      bool   `json:"typing"`
}

type readReq struct {
	MessageID uint64 `json:"message_id"`
}

type statusReq struct {
	UserIDs []uint64 `json:"user_ids"`
}

// Dispatch decodes one client event, runs it and builds the reply. It never panics and never
// returns storage details to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, s Session, event string, data json.RawMessage) (reply Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("event handler panic", "event", event, "user_id", s.UserID, "panic", fmt.Sprint(rec))
			reply = Reply{Error: ErrInternal.Error()}
		}
	}()

	d.presence.Touch(s.UserID, d.now())

	reply, err := d.handle(ctx, s, event, data)
	if err != nil {
		if Reason(err) == ErrInternal.Error() {
			d.log.Error("event failed", "event", event, "user_id", s.UserID, "session_id", s.ID, "err", err)
			return Reply{Error: ErrInternal.Error()}
		}
		return Reply{Error: Reason(err), Detail: detail(err)}
	}
	reply.Success = true
	return reply
}

func (d *Dispatcher) handle(ctx context.Context, s Session, event string, data json.RawMessage) (Reply, error) {
	switch event {
	case CmdJoinConversation:
		var req peerReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		return Reply{}, d.JoinConversation(ctx, s, req.UserID)

	case CmdLeaveConversation:
		var req peerReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		return Reply{}, d.LeaveConversation(ctx, s, req.UserID)

	case CmdSendMessage:
		var req sendReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		msg, err := d.SendMessage(ctx, s, SendMessageInput{
			RecipientID:     req.RecipientID,
			Content:         req.Content,
			ClientMessageID: req.ClientMessageID,
		})
		if err != nil {
			return Reply{}, err
		}
		return Reply{Message: msg}, nil

	case CmdTyping:
		var req typingReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		return Reply{}, d.Typing(ctx, s, req.RecipientID, req.Typing)

	case CmdReadMessage:
		var req readReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		return Reply{}, d.ReadMessage(ctx, s, req.MessageID)

	case CmdGetOnlineStatus:
		var req statusReq
		if err := decode(data, &req); err != nil {
			return Reply{}, err
		}
		status, err := d.OnlineStatus(ctx, s, req.UserIDs)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Status: status}, nil

	default:
		return Reply{}, validation(fmt.Sprintf("unknown event %q", event))
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return validation("malformed payload")
	}
	return nil
}

// detail keeps the human readable part of a client error.
func detail(err error) string {
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrUnauthorized} {
		if rest, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": "); ok {
			return rest
		}
	}
	return ""
}
