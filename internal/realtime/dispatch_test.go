package realtime

import (
	"context"
	"encoding/json"
	"testing"
)

func TestDispatch(t *testing.T) {
	f := newFixture(1, 2)
	ctx := context.Background()
	u1 := session("s1", 1)
	_ = f.d.Connect(ctx, u1)

	tests := []struct {
		name    string
		event   string
		data    string
		wantErr string
	}{
		{"join", CmdJoinConversation, `{"user_id":2}`, ""},
		{"join self", CmdJoinConversation, `{"user_id":1}`, "validation"},
		{"leave", CmdLeaveConversation, `{"user_id":2}`, ""},
		{"typing", CmdTyping, `{"recipient_id":2,"typing":true}`, ""},
		{"typing missing recipient", CmdTyping, `{"typing":true}`, "validation"},
		{"send", CmdSendMessage, `{"recipient_id":2,"content":"hi"}`, ""},
		{"send empty", CmdSendMessage, `{"recipient_id":2,"content":""}`, "validation"},
		{"send unknown user", CmdSendMessage, `{"recipient_id":77,"content":"hi"}`, "not_found"},
		{"read missing", CmdReadMessage, `{"message_id":12345}`, "not_found"},
		{"status", CmdGetOnlineStatus, `{"user_ids":[1,2]}`, ""},
		{"status empty", CmdGetOnlineStatus, `{"user_ids":[]}`, "validation"},
		{"malformed", CmdSendMessage, `{"recipient_id":"two"}`, "validation"},
		{"no payload", CmdJoinConversation, ``, "validation"},
		{"unknown event", "dance", `{}`, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.d.Dispatch(ctx, u1, tt.event, json.RawMessage(tt.data))
			if tt.wantErr == "" {
				if !reply.Success || reply.Error != "" {
					t.Fatalf("expected success, got %+v", reply)
				}
				return
			}
			if reply.Success || reply.Error != tt.wantErr {
				t.Fatalf("expected error %q, got %+v", tt.wantErr, reply)
			}
		})
	}
}

func TestDispatch_SendReturnsMessage(t *testing.T) {
	f := newFixture(1, 2)
	u1 := session("s1", 1)

	reply := f.d.Dispatch(context.Background(), u1, CmdSendMessage,
		json.RawMessage(`{"recipient_id":2,"content":"hello","client_message_id":"tmp-1"}`))
	if !reply.Success || reply.Message == nil {
		t.Fatalf("expected message in reply, got %+v", reply)
	}
	if reply.Message.Content != "hello" || reply.Message.ClientMessageID == nil || *reply.Message.ClientMessageID != "tmp-1" {
		t.Fatalf("unexpected message: %+v", reply.Message)
	}
}

func TestDispatch_StatusReply(t *testing.T) {
	f := newFixture(1, 2)
	u1 := session("s1", 1)
	_ = f.d.Connect(context.Background(), u1)

	reply := f.d.Dispatch(context.Background(), u1, CmdGetOnlineStatus, json.RawMessage(`{"user_ids":[1,2]}`))
	b, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"success":true,"status":{"1":true,"2":false}}` {
		t.Fatalf("unexpected reply json: %s", b)
	}
}

func TestDispatch_InternalErrorsAreOpaque(t *testing.T) {
	f := newFixture(1, 2)
	u1 := session("s1", 1)
	f.store.saveErr = errTest("duplicate key chat_messages.PRIMARY")

	reply := f.d.Dispatch(context.Background(), u1, CmdSendMessage, json.RawMessage(`{"recipient_id":2,"content":"hi"}`))
	if reply.Error != "internal" || reply.Detail != "" {
		t.Fatalf("storage details must not leak: %+v", reply)
	}
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	f := newFixture(1, 2)
	f.store.panicOnRead = true
	u2 := session("s2", 2)

	reply := f.d.Dispatch(context.Background(), u2, CmdReadMessage, json.RawMessage(`{"message_id":1}`))
	if reply.Error != "internal" {
		t.Fatalf("expected internal error after panic, got %+v", reply)
	}
}

func TestDispatch_TouchesActivity(t *testing.T) {
	f := newFixture(1, 2)
	u1 := session("s1", 1)
	_ = f.d.Connect(context.Background(), u1)
	before, _ := f.registry.LastActivity(1)

	f.d.Dispatch(context.Background(), u1, CmdTyping, json.RawMessage(`{"recipient_id":2,"typing":true}`))

	after, ok := f.registry.LastActivity(1)
	if !ok || after.Before(before) {
		t.Fatalf("expected activity to move forward: before=%v after=%v", before, after)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
