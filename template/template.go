// Package template defines the versioned interchange format of a badge
// template and the codecs that read and write it.
package template

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/alimasry/go-badge-editor/badge"
)

// CurrentVersion is the format version written by Encode.
const CurrentVersion = "2.0"

var (
	ErrMissingVersion  = errors.New("template has no version")
	ErrNeedsMigration  = errors.New("template needs migration")
	ErrInvalidTemplate = errors.New("invalid template")
)

// BadgeType is the number of printed sides.
type BadgeType string

const (
	BadgeSingle BadgeType = "single"
	BadgeDouble BadgeType = "double"
)

// Side is one face of a badge.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// CanvasSize is the design surface in pixels.
type CanvasSize struct {
	Width  float64 `json:"width" cbor:"width"`
	Height float64 `json:"height" cbor:"height"`
}

// Backgrounds holds the optional background image reference of each side.
type Backgrounds struct {
	Front string `json:"front,omitempty" cbor:"front,omitempty"`
	Back  string `json:"back,omitempty" cbor:"back,omitempty"`
}

// Get returns the background of side s.
func (b Backgrounds) Get(s Side) string {
	if s == SideBack {
		return b.Back
	}
	return b.Front
}

// Set replaces the background of side s.
func (b *Backgrounds) Set(s Side, url string) {
	if s == SideBack {
		b.Back = url
		return
	}
	b.Front = url
}

// VersionEntry is one line of a template's version history.
type VersionEntry struct {
	Version string    `json:"version" cbor:"version"`
	At      time.Time `json:"at" cbor:"at"`
	Note    string    `json:"note,omitempty" cbor:"note,omitempty"`
}

// Metadata is bookkeeping carried alongside the elements.
type Metadata struct {
	CreatedAt      time.Time      `json:"createdAt" cbor:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt" cbor:"updatedAt"`
	VersionHistory []VersionEntry `json:"versionHistory,omitempty" cbor:"versionHistory,omitempty"`
}

// Template is the exported form of a badge document.
type Template struct {
	Version     string          `json:"version" cbor:"version"`
	ID          string          `json:"id" cbor:"id"`
	Name        string          `json:"name,omitempty" cbor:"name,omitempty"`
	Canvas      CanvasSize      `json:"canvas" cbor:"canvas"`
	BadgeType   BadgeType       `json:"badgeType" cbor:"badgeType"`
	Side        Side            `json:"currentSide" cbor:"currentSide"`
	Backgrounds Backgrounds     `json:"backgrounds" cbor:"backgrounds"`
	Elements    []badge.Element `json:"-" cbor:"-"`
	Metadata    Metadata        `json:"metadata" cbor:"metadata"`
}

// New returns an empty template with a fresh id.
func New(name string) Template {
	now := time.Now().UTC()
	return Template{
		Version:   CurrentVersion,
		ID:        NewID(),
		Name:      name,
		Canvas:    CanvasSize{Width: 400, Height: 600},
		BadgeType: BadgeSingle,
		Side:      SideFront,
		Metadata:  Metadata{CreatedAt: now, UpdatedAt: now},
	}
}

// NewID returns a fresh template identifier.
func NewID() string {
	return ksuid.New().String()
}

// Validate checks the structural rules a template must satisfy before it
// can replace the live document.
func (t Template) Validate() error {
	if t.Version == "" {
		return ErrMissingVersion
	}
	switch t.BadgeType {
	case BadgeSingle, BadgeDouble, "":
	default:
		return fmt.Errorf("%w: badge type %q", ErrInvalidTemplate, t.BadgeType)
	}
	switch t.Side {
	case SideFront, SideBack, "":
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidTemplate, t.Side)
	}
	if t.Canvas.Width < 0 || t.Canvas.Height < 0 {
		return fmt.Errorf("%w: negative canvas size", ErrInvalidTemplate)
	}
	seen := make(map[string]bool, len(t.Elements))
	for i, el := range t.Elements {
		if el.ID == "" {
			return fmt.Errorf("%w: element %d: %v", ErrInvalidTemplate, i, badge.ErrMissingID)
		}
		if !el.Type.Valid() {
			return fmt.Errorf("%w: element %q: %v %q", ErrInvalidTemplate, el.ID, badge.ErrUnknownType, el.Type)
		}
		if seen[el.ID] {
			return fmt.Errorf("%w: duplicate element id %q", ErrInvalidTemplate, el.ID)
		}
		seen[el.ID] = true
	}
	return nil
}
