package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const matrixSourceName = "matrix"

// MatrixSource forwards text and notice messages posted in one Matrix room.
type MatrixSource struct {
	client *mautrix.Client
	room   string
	log    zerolog.Logger
}

// NewMatrix creates a Matrix source. room is a room ID (!id:server) or an
// alias (#alias:server).
func NewMatrix(homeserver, userID, accessToken, room string, log zerolog.Logger) (*MatrixSource, error) {
	if strings.TrimSpace(homeserver) == "" {
		return nil, errors.New("matrix: homeserver is required")
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("matrix: access token is required")
	}
	room = strings.TrimSpace(room)
	if !strings.HasPrefix(room, "!") && !strings.HasPrefix(room, "#") {
		return nil, fmt.Errorf("matrix: room %q must be a room id or alias", room)
	}

	client, err := mautrix.NewClient(homeserver, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	return &MatrixSource{client: client, room: room, log: log}, nil
}

// Name returns "matrix".
func (m *MatrixSource) Name() string {
	return matrixSourceName
}

// Whoami verifies the access token and returns the account's user ID.
func (m *MatrixSource) Whoami(ctx context.Context) (string, error) {
	resp, err := m.client.Whoami(ctx)
	if err != nil {
		return "", fmt.Errorf("matrix: whoami: %w", err)
	}
	return resp.UserID.String(), nil
}

// ResolveRoom returns the room ID, resolving an alias through the directory.
func (m *MatrixSource) ResolveRoom(ctx context.Context) (id.RoomID, error) {
	if strings.HasPrefix(m.room, "!") {
		return id.RoomID(m.room), nil
	}
	resp, err := m.client.ResolveAlias(ctx, id.RoomAlias(m.room))
	if err != nil {
		return "", fmt.Errorf("matrix: resolve alias %s: %w", m.room, err)
	}
	return resp.RoomID, nil
}

// Subscribe syncs until ctx ends. Events from the initial sync are skipped
// so history is never replayed.
func (m *MatrixSource) Subscribe(ctx context.Context, h Handler) error {
	roomID, err := m.ResolveRoom(ctx)
	if err != nil {
		return err
	}
	if m.client.UserID == "" {
		who, err := m.client.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("matrix: whoami: %w", err)
		}
		m.client.UserID = who.UserID
	}

	syncer, ok := m.client.Syncer.(mautrix.ExtensibleSyncer)
	if !ok {
		return errors.New("matrix: syncer does not support event handlers")
	}
	syncer.OnSync(m.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		msg, ok := messageFromEvent(evt, roomID, m.client.UserID)
		if !ok {
			return
		}
		h(ctx, msg)
	})

	m.log.Info().Str("room_id", roomID.String()).Msg("matrix sync starting")
	err = m.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("matrix: sync: %w", err)
	}
	return nil
}

// messageFromEvent converts a room message event, accepting only text and
// notice messages in room that were not sent by self.
func messageFromEvent(evt *event.Event, room id.RoomID, self id.UserID) (Message, bool) {
	if evt == nil || evt.RoomID != room || evt.Sender == self {
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil {
		return Message{}, false
	}
	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
	default:
		return Message{}, false
	}

	return Message{
		Source:  matrixSourceName,
		Channel: room.String(),
		ID:      evt.ID.String(),
		Text:    content.Body,
		At:      time.UnixMilli(evt.Timestamp),
	}, true
}
