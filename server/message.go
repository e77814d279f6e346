package server

import (
	"encoding/json"

	"github.com/alimasry/go-badge-editor/badge"
	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/template"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin       = "join"
	MsgAdd        = "add"
	MsgUpdate     = "update"
	MsgDelete     = "delete"
	MsgActivate   = "activate"
	MsgSelect     = "select"
	MsgReorder    = "reorder"
	MsgUndo       = "undo"
	MsgRedo       = "redo"
	MsgCanvas     = "canvas"
	MsgBadgeType  = "badgeType"
	MsgSide       = "side"
	MsgBackground = "background"
	MsgClear      = "clear"

	MsgState = "state"
	MsgError = "error"
)

// ClientMessage is a message from client to server. Which fields are used
// depends on Type.
type ClientMessage struct {
	Type string `json:"type"`

	// add, update, delete, activate
	ID          string            `json:"id,omitempty"`
	ElementType badge.ElementType `json:"elementType,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
	// update: apply without recording history (live drag).
	Transient bool `json:"transient,omitempty"`

	// select
	IDs []string `json:"ids,omitempty"`

	// reorder
	From int `json:"from"`
	To   int `json:"to"`

	// canvas
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	BadgeType template.BadgeType `json:"badgeType,omitempty"`
	// side, background
	Side template.Side `json:"side,omitempty"`
	URL  string        `json:"url,omitempty"`
}

// patch converts the wire properties to a badge.Patch. A JSON null removes
// the key.
func (m ClientMessage) patch() badge.Patch {
	p := make(badge.Patch, len(m.Properties))
	for k, v := range m.Properties {
		if v == nil {
			p[k] = badge.Unset
			continue
		}
		p[k] = v
	}
	return p
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type     string        `json:"type"`
	State    *editor.State `json:"state,omitempty"`
	ClientID string        `json:"clientId,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
