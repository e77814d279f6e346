package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alimasry/go-badge-editor/badge"
	"github.com/alimasry/go-badge-editor/editor"
)

// ErrSessionClosed is returned by Do once the session loop has exited.
var ErrSessionClosed = errors.New("session closed")

type command struct {
	client *Client
	msg    ClientMessage
}

type call struct {
	fn   func(*editor.Store) error
	done chan error
}

// Session owns the live document and the clients editing it.
// All commands are serialized through a single goroutine.
type Session struct {
	doc     *editor.Store
	logger  *slog.Logger
	clients map[*Client]bool
	changed atomic.Bool

	incoming chan command
	calls    chan call
	join     chan *Client
	leave    chan *Client
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSession creates a session for doc. Call Run to start serving it.
func NewSession(doc *editor.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		doc:      doc,
		logger:   logger.With("component", "session"),
		clients:  make(map[*Client]bool),
		incoming: make(chan command, 64),
		calls:    make(chan call, 16),
		join:     make(chan *Client, 16),
		leave:    make(chan *Client, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run is the session's main loop. It returns when ctx is cancelled or Stop
// is called, after closing every client's send channel.
func (s *Session) Run(ctx context.Context) error {
	unsubscribe := s.doc.Subscribe(func(editor.Change) { s.changed.Store(true) })
	defer func() {
		unsubscribe()
		for c := range s.clients {
			delete(s.clients, c)
			close(c.send)
		}
		close(s.done)
	}()

	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case cmd := <-s.incoming:
			s.handleCommand(cmd)
			s.broadcastIfChanged()
		case cl := <-s.calls:
			cl.done <- cl.fn(s.doc)
			s.broadcastIfChanged()
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends the session loop.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Do runs fn on the session goroutine and waits for its result. Clients
// are sent the new state if fn changed the document.
func (s *Session) Do(ctx context.Context, fn func(*editor.Store) error) error {
	cl := call{fn: fn, done: make(chan error, 1)}
	select {
	case s.calls <- cl:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cl.done:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handleJoin(c *Client) {
	s.clients[c] = true
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	st := s.doc.Snapshot()
	c.sendMsg(ServerMessage{Type: MsgState, State: &st, ClientID: c.ID})
	s.logger.Debug("client joined", "client", c.ID, "clients", len(s.clients))
}

func (s *Session) handleLeave(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.mu.Lock()
	c.joined = false
	c.mu.Unlock()
	close(c.send)
	s.logger.Debug("client left", "client", c.ID, "clients", len(s.clients))
}

func (s *Session) broadcastIfChanged() {
	if !s.changed.Swap(false) {
		return
	}
	st := s.doc.Snapshot()
	msg := ServerMessage{Type: MsgState, State: &st}
	for c := range s.clients {
		c.sendMsg(msg)
	}
}

func (s *Session) handleCommand(cmd command) {
	if err := s.apply(cmd.msg); err != nil {
		s.logger.Debug("command failed", "client", cmd.client.ID, "type", cmd.msg.Type, "error", err)
		cmd.client.sendError(err.Error())
	}
}

// apply performs one client command on the document.
func (s *Session) apply(msg ClientMessage) error {
	doc := s.doc
	switch msg.Type {
	case MsgAdd:
		if !msg.ElementType.Valid() {
			return fmt.Errorf("%w: %q", badge.ErrUnknownType, msg.ElementType)
		}
		el := badge.Element{ID: msg.ID, Type: msg.ElementType, Properties: badge.NewProperties(msg.ElementType)}
		perr := el.Apply(msg.patch())
		if _, err := doc.AddElement(el); err != nil {
			return err
		}
		return perr
	case MsgUpdate:
		return doc.UpdateElement(msg.ID, msg.patch(), msg.Transient)
	case MsgDelete:
		doc.DeleteElement(msg.ID)
	case MsgActivate:
		doc.SetActiveElement(msg.ID)
	case MsgSelect:
		doc.SetSelectedElements(msg.IDs)
	case MsgReorder:
		doc.ReorderElements(msg.From, msg.To)
	case MsgUndo:
		doc.Undo()
	case MsgRedo:
		doc.Redo()
	case MsgCanvas:
		return doc.SetCanvasSize(msg.Width, msg.Height)
	case MsgBadgeType:
		return doc.SetBadgeType(msg.BadgeType)
	case MsgSide:
		return doc.SetCurrentSide(msg.Side)
	case MsgBackground:
		return doc.SetBackgroundImage(msg.Side, msg.URL)
	case MsgClear:
		doc.ClearCanvas()
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
	return nil
}
