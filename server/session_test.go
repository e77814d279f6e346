package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alimasry/go-badge-editor/badge"
	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/template"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a client without a real WebSocket connection, for testing.
func mockClient(id string) *Client {
	return &Client{
		ID:   id,
		send: make(chan []byte, 256),
	}
}

// recvMsg reads one message from a mock client's send channel with timeout.
func recvMsg(t *testing.T, c *Client) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return ServerMessage{}
	}
}

func startSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(editor.New(editor.WithLogger(quietLogger())), quietLogger())
	go s.Run(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func joinClient(t *testing.T, s *Session, id string) *Client {
	t.Helper()
	c := mockClient(id)
	c.session = s
	s.join <- c
	msg := recvMsg(t, c)
	if msg.Type != MsgState {
		t.Fatalf("expected state on join, got %q", msg.Type)
	}
	return c
}

func send(s *Session, c *Client, msg ClientMessage) {
	s.incoming <- command{client: c, msg: msg}
}

func TestSession_JoinReceivesState(t *testing.T) {
	s := startSession(t)

	c := mockClient("c1")
	s.join <- c
	msg := recvMsg(t, c)

	if msg.Type != MsgState {
		t.Fatalf("expected state message, got %q", msg.Type)
	}
	if msg.ClientID != "c1" {
		t.Errorf("clientId = %q, want c1", msg.ClientID)
	}
	if msg.State == nil {
		t.Fatal("state missing")
	}
	if len(msg.State.Elements) != 0 {
		t.Errorf("elements = %d, want 0", len(msg.State.Elements))
	}
	if msg.State.Canvas.Width != editor.DefaultCanvasWidth {
		t.Errorf("canvas width = %v", msg.State.Canvas.Width)
	}
}

func TestSession_AddBroadcastsToAll(t *testing.T) {
	s := startSession(t)
	c1 := joinClient(t, s, "c1")
	c2 := joinClient(t, s, "c2")

	send(s, c1, ClientMessage{
		Type:        MsgAdd,
		ID:          "t1",
		ElementType: badge.TypeText,
		Properties:  map[string]any{"content": "Hello", "left": 10.0},
	})

	for _, c := range []*Client{c1, c2} {
		msg := recvMsg(t, c)
		if msg.Type != MsgState {
			t.Fatalf("%s: expected state, got %q", c.ID, msg.Type)
		}
		if len(msg.State.Elements) != 1 {
			t.Fatalf("%s: elements = %d, want 1", c.ID, len(msg.State.Elements))
		}
		el := msg.State.Elements[0]
		if el.ID != "t1" || el.Properties.Text.Content != "Hello" || el.Properties.Left != 10 {
			t.Errorf("%s: unexpected element %+v", c.ID, el)
		}
		if !msg.State.CanUndo {
			t.Errorf("%s: canUndo = false after add", c.ID)
		}
	}
}

func TestSession_UpdateUndoRedo(t *testing.T) {
	s := startSession(t)
	c := joinClient(t, s, "c1")

	send(s, c, ClientMessage{Type: MsgAdd, ID: "t1", ElementType: badge.TypeText})
	recvMsg(t, c)
	send(s, c, ClientMessage{Type: MsgUpdate, ID: "t1", Properties: map[string]any{"content": "A"}})
	recvMsg(t, c)

	send(s, c, ClientMessage{Type: MsgUndo})
	msg := recvMsg(t, c)
	if got := msg.State.Elements[0].Properties.Text.Content; got != "" {
		t.Errorf("after undo content = %q, want empty", got)
	}
	if !msg.State.CanRedo {
		t.Error("canRedo = false after undo")
	}

	send(s, c, ClientMessage{Type: MsgRedo})
	msg = recvMsg(t, c)
	if got := msg.State.Elements[0].Properties.Text.Content; got != "A" {
		t.Errorf("after redo content = %q, want A", got)
	}
}

func TestSession_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"unknown type", ClientMessage{Type: "bogus"}},
		{"unknown element type", ClientMessage{Type: MsgAdd, ElementType: "video"}},
		{"bad canvas", ClientMessage{Type: MsgCanvas, Width: -1, Height: 10}},
		{"bad side", ClientMessage{Type: MsgSide, Side: "top"}},
		{"bad patch", ClientMessage{Type: MsgAdd, ElementType: badge.TypeText, Properties: map[string]any{"fontSize": "big"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startSession(t)
			c := joinClient(t, s, "c1")
			send(s, c, tt.msg)

			// A failed patch still adds the element, so skip its state.
			msg := recvMsg(t, c)
			if msg.Type == MsgState {
				msg = recvMsg(t, c)
			}
			if msg.Type != MsgError {
				t.Fatalf("expected error, got %q", msg.Type)
			}
			if msg.Message == "" {
				t.Error("error message empty")
			}
		})
	}
}

func TestSession_SelectionAndConfig(t *testing.T) {
	s := startSession(t)
	c := joinClient(t, s, "c1")

	send(s, c, ClientMessage{Type: MsgAdd, ID: "a", ElementType: badge.TypeShape})
	recvMsg(t, c)
	send(s, c, ClientMessage{Type: MsgSelect, IDs: []string{"a"}})
	msg := recvMsg(t, c)
	if msg.State.ActiveID != "a" {
		t.Errorf("activeId = %q, want a", msg.State.ActiveID)
	}

	send(s, c, ClientMessage{Type: MsgBadgeType, BadgeType: template.BadgeDouble})
	msg = recvMsg(t, c)
	if msg.State.BadgeType != template.BadgeDouble {
		t.Errorf("badgeType = %q", msg.State.BadgeType)
	}

	send(s, c, ClientMessage{Type: MsgBackground, Side: template.SideBack, URL: "back.png"})
	msg = recvMsg(t, c)
	if msg.State.Backgrounds.Back != "back.png" {
		t.Errorf("back background = %q", msg.State.Backgrounds.Back)
	}
}

func TestSession_NoBroadcastWithoutChange(t *testing.T) {
	s := startSession(t)
	c := joinClient(t, s, "c1")

	send(s, c, ClientMessage{Type: MsgUndo})
	send(s, c, ClientMessage{Type: MsgDelete, ID: "missing"})
	time.Sleep(50 * time.Millisecond)

	select {
	case data := <-c.send:
		t.Fatalf("unexpected message %s", data)
	default:
	}
}

func TestSession_Do(t *testing.T) {
	s := startSession(t)
	c := joinClient(t, s, "c1")

	err := s.Do(context.Background(), func(doc *editor.Store) error {
		_, err := doc.AddElement(badge.Element{ID: "q", Type: badge.TypeQR})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	msg := recvMsg(t, c)
	if len(msg.State.Elements) != 1 || msg.State.Elements[0].ID != "q" {
		t.Errorf("unexpected state after Do: %+v", msg.State.Elements)
	}

	want := errors.New("boom")
	if err := s.Do(context.Background(), func(*editor.Store) error { return want }); !errors.Is(err, want) {
		t.Errorf("Do error = %v, want %v", err, want)
	}
}

func TestSession_StopClosesClients(t *testing.T) {
	s := NewSession(editor.New(), quietLogger())
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	c := joinClient(t, s, "c1")
	s.Stop()
	<-done

	if _, ok := <-c.send; ok {
		t.Error("send channel still open after stop")
	}
	if err := s.Do(context.Background(), func(*editor.Store) error { return nil }); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Do after stop = %v, want ErrSessionClosed", err)
	}
}

func TestSession_Leave(t *testing.T) {
	s := startSession(t)
	c1 := joinClient(t, s, "c1")
	c2 := joinClient(t, s, "c2")

	s.leave <- c2
	send(s, c1, ClientMessage{Type: MsgAdd, ElementType: badge.TypeImage})
	recvMsg(t, c1)

	// The leave may race the add; either way the channel ends closed.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c2.send:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("left client send channel not closed")
		}
	}
}
