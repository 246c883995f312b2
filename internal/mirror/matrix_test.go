package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

func TestNewMatrix_Validation(t *testing.T) {
	tests := []struct {
		name                   string
		homeserver, token, room string
	}{
		{"missing homeserver", "", "tok", "!r:x"},
		{"missing token", "https://m.example.org", "", "!r:x"},
		{"bad room", "https://m.example.org", "tok", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMatrix(tt.homeserver, "@bot:x", tt.token, tt.room, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/_matrix/client/v3/directory/room/") {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"errcode": "M_NOT_FOUND", "error": "no"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"room_id": "!resolved:example.org",
			"servers": []string{"example.org"},
		})
	}))
	defer srv.Close()

	byAlias, err := NewMatrix(srv.URL, "@bot:example.org", "tok", "#signals:example.org", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got, err := byAlias.ResolveRoom(context.Background())
	if err != nil {
		t.Fatalf("ResolveRoom: %v", err)
	}
	if got != "!resolved:example.org" {
		t.Errorf("room = %q", got)
	}

	byID, err := NewMatrix(srv.URL, "@bot:example.org", "tok", "!direct:example.org", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got, err = byID.ResolveRoom(context.Background())
	if err != nil || got != "!direct:example.org" {
		t.Errorf("ResolveRoom() = %q, %v", got, err)
	}
}

func TestMessageFromEvent(t *testing.T) {
	room := id.RoomID("!signals:example.org")
	self := id.UserID("@bot:example.org")

	msgEvent := func(roomID id.RoomID, sender id.UserID, msgType event.MessageType, body string) *event.Event {
		return &event.Event{
			ID:        "$evt",
			RoomID:    roomID,
			Sender:    sender,
			Timestamp: 1_700_000_000_000,
			Type:      event.EventMessage,
			Content:   event.Content{Parsed: &event.MessageEventContent{MsgType: msgType, Body: body}},
		}
	}

	tests := []struct {
		name string
		evt  *event.Event
		ok   bool
	}{
		{"text", msgEvent(room, "@admin:example.org", event.MsgText, "hello"), true},
		{"notice", msgEvent(room, "@admin:example.org", event.MsgNotice, "heads up"), true},
		{"image skipped", msgEvent(room, "@admin:example.org", event.MsgImage, "pic.png"), false},
		{"other room", msgEvent("!other:example.org", "@admin:example.org", event.MsgText, "hi"), false},
		{"own message", msgEvent(room, self, event.MsgText, "echo"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := messageFromEvent(tt.evt, room, self)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok {
				if msg.Source != "matrix" || msg.Channel != string(room) || msg.ID != "$evt" || msg.Text != tt.evt.Content.AsMessage().Body {
					t.Errorf("msg = %+v", msg)
				}
				if msg.At.UnixMilli() != 1_700_000_000_000 {
					t.Errorf("at = %v", msg.At)
				}
			}
		})
	}
}
