// Package editor holds the live badge document: its element list, selection
// and configuration, with bounded undo/redo over element changes.
package editor

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alimasry/go-badge-editor/badge"
	"github.com/alimasry/go-badge-editor/template"
)

// ChangeKind identifies the operation that produced a Change.
type ChangeKind string

const (
	ChangeAdd       ChangeKind = "add"
	ChangeUpdate    ChangeKind = "update"
	ChangeDelete    ChangeKind = "delete"
	ChangeReorder   ChangeKind = "reorder"
	ChangeSelection ChangeKind = "selection"
	ChangeConfig    ChangeKind = "config"
	ChangeUndo      ChangeKind = "undo"
	ChangeRedo      ChangeKind = "redo"
	ChangeLoad      ChangeKind = "load"
	ChangeClear     ChangeKind = "clear"
)

// Change is delivered to subscribers after every successful mutation.
type Change struct {
	Kind       ChangeKind
	ElementID  string
	Historized bool
}

// State is a read-only copy of the document for renderers.
type State struct {
	Elements    []badge.Element `json:"elements"`
	ActiveID    string          `json:"activeElementId,omitempty"`
	SelectedIDs []string        `json:"selectedElementIds"`
	Config
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHistoryLimit bounds the undo log; non-positive values select
// badge.MaxHistorySize.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.historyLimit = n }
}

func WithCanvasSize(w, h float64) Option {
	return func(s *Store) { s.cfg.Canvas = template.CanvasSize{Width: w, Height: h} }
}

// WithIDGenerator replaces the generator used for elements added without
// an id.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// Store is the live document. All methods are safe for concurrent use;
// subscribers are called after the store's lock is released.
type Store struct {
	mu       sync.Mutex
	elements []badge.Element
	active   string
	selected []string
	cfg      Config
	history  *badge.History
	// pending is set while transient updates have changed elements
	// without being recorded.
	pending bool

	id       string
	name     string
	meta     template.Metadata
	modified time.Time

	historyLimit int
	newID        func() string
	logger       *slog.Logger

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// New creates an empty document.
func New(opts ...Option) *Store {
	now := time.Now().UTC()
	s := &Store{
		cfg:       DefaultConfig(),
		id:        template.NewID(),
		meta:      template.Metadata{CreatedAt: now, UpdatedAt: now},
		modified:  now,
		newID:     badge.NewID,
		logger:    slog.Default(),
		observers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "editor")
	s.history = badge.NewHistory(nil, s.historyLimit)
	return s
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// touch marks the document modified. Callers hold mu.
func (s *Store) touch() {
	s.modified = time.Now().UTC()
}

// flushPending records transient changes as their own history entry.
// Callers hold mu.
func (s *Store) flushPending() {
	if !s.pending {
		return
	}
	s.pending = false
	s.history.Record(s.elements, nil)
}

// selectIDs replaces the selection with the ids that exist, keeping the
// active element equal to a single selected id. Callers hold mu.
func (s *Store) selectIDs(ids []string) {
	sel := make([]string, 0, len(ids))
	for _, id := range ids {
		if badge.IndexOf(s.elements, id) >= 0 && !slices.Contains(sel, id) {
			sel = append(sel, id)
		}
	}
	s.selected = sel
	s.active = ""
	if len(sel) == 1 {
		s.active = sel[0]
	}
}

// AddElement appends el, makes it the sole selection and records the
// addition. An empty id is replaced with a fresh one; an id already in the
// document is rejected with ErrDuplicateID.
func (s *Store) AddElement(el badge.Element) (badge.Element, error) {
	if !el.Type.Valid() {
		return badge.Element{}, fmt.Errorf("add element: %w: %q", badge.ErrUnknownType, el.Type)
	}
	el = el.Clone()
	el.Normalize()

	s.mu.Lock()
	if el.ID == "" {
		el.ID = s.newID()
	}
	if badge.IndexOf(s.elements, el.ID) >= 0 {
		s.mu.Unlock()
		return badge.Element{}, fmt.Errorf("add element %q: %w", el.ID, ErrDuplicateID)
	}
	s.flushPending()
	d := badge.AddDiff(el, len(s.elements))
	s.elements = append(s.elements, el)
	s.selectIDs([]string{el.ID})
	s.history.Record(s.elements, &d)
	s.touch()
	s.mu.Unlock()

	s.logger.Debug("element added", "id", el.ID, "type", el.Type)
	s.notify(Change{Kind: ChangeAdd, ElementID: el.ID, Historized: true})
	return el.Clone(), nil
}

// UpdateElement merges patch into the properties of element id. Unknown ids
// are ignored. With skipHistory set the change is applied without a history
// entry; the next recorded operation captures it. Keys whose values have
// the wrong kind are reported in a *badge.PatchError and the others are
// still applied.
func (s *Store) UpdateElement(id string, patch badge.Patch, skipHistory bool) error {
	s.mu.Lock()
	i := badge.IndexOf(s.elements, id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	before := s.elements[i].Clone()
	err := s.elements[i].Apply(patch)
	changed := !badge.Equal([]badge.Element{before}, s.elements[i:i+1])
	if skipHistory {
		s.pending = s.pending || changed
	} else {
		s.pending = false
		s.history.Record(s.elements, nil)
	}
	if changed {
		s.touch()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("element update rejected keys", "id", id, "error", err)
	}
	s.notify(Change{Kind: ChangeUpdate, ElementID: id, Historized: !skipHistory})
	return err
}

// DeleteElement removes element id and drops it from the selection.
func (s *Store) DeleteElement(id string) {
	s.mu.Lock()
	i := badge.IndexOf(s.elements, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.flushPending()
	d := badge.DeleteDiff(s.elements[i], i)
	s.elements = slices.Delete(s.elements, i, i+1)
	s.selectIDs(s.selected)
	s.history.Record(s.elements, &d)
	s.touch()
	s.mu.Unlock()

	s.logger.Debug("element deleted", "id", id)
	s.notify(Change{Kind: ChangeDelete, ElementID: id, Historized: true})
}

// SetActiveElement makes id the sole active and selected element. An empty
// id clears both.
func (s *Store) SetActiveElement(id string) {
	s.mu.Lock()
	if id != "" && badge.IndexOf(s.elements, id) < 0 {
		s.mu.Unlock()
		return
	}
	if id == "" {
		s.selectIDs(nil)
	} else {
		s.selectIDs([]string{id})
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSelection, ElementID: id})
}

// SetSelectedElements replaces the selection. Exactly one id also becomes
// the active element; any other count clears it. Unknown ids are dropped.
func (s *Store) SetSelectedElements(ids []string) {
	s.mu.Lock()
	s.selectIDs(ids)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeSelection})
}

// ReorderElements moves the element at from to position to. Indices out of
// range, or equal, leave the document unchanged.
func (s *Store) ReorderElements(from, to int) {
	s.mu.Lock()
	n := len(s.elements)
	if from == to || from < 0 || to < 0 || from >= n || to >= n {
		s.mu.Unlock()
		return
	}
	s.flushPending()
	d := badge.ReorderDiff(from, to)
	s.elements = badge.ApplyDiff(s.elements, d)
	s.history.Record(s.elements, &d)
	s.touch()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReorder, Historized: true})
}

func (s *Store) setConfig(apply func(*Config)) {
	s.mu.Lock()
	apply(&s.cfg)
	s.touch()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeConfig})
}

func (s *Store) SetCanvasSize(w, h float64) error {
	if err := validCanvas(w, h); err != nil {
		return err
	}
	s.setConfig(func(c *Config) { c.Canvas = template.CanvasSize{Width: w, Height: h} })
	return nil
}

func (s *Store) SetBadgeType(t template.BadgeType) error {
	if err := validBadgeType(t); err != nil {
		return err
	}
	s.setConfig(func(c *Config) { c.BadgeType = t })
	return nil
}

func (s *Store) SetCurrentSide(side template.Side) error {
	if err := validSide(side); err != nil {
		return err
	}
	s.setConfig(func(c *Config) { c.Side = side })
	return nil
}

// SetBackgroundImage sets the background of side; an empty url removes it.
func (s *Store) SetBackgroundImage(side template.Side, url string) error {
	if err := validSide(side); err != nil {
		return err
	}
	s.setConfig(func(c *Config) { c.Backgrounds.Set(side, url) })
	return nil
}

// Undo reverts the most recent recorded change. Transient updates made
// since then are recorded first, so they are what gets reverted.
func (s *Store) Undo() bool {
	return s.step(ChangeUndo, (*badge.History).Undo)
}

// Redo re-applies the change after the history cursor.
func (s *Store) Redo() bool {
	return s.step(ChangeRedo, (*badge.History).Redo)
}

func (s *Store) step(kind ChangeKind, move func(*badge.History) ([]badge.Element, bool)) bool {
	s.mu.Lock()
	s.flushPending()
	next, ok := move(s.history)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.elements = next
	s.selectIDs(s.selected)
	s.touch()
	s.mu.Unlock()

	s.logger.Debug("history step", "op", kind)
	s.notify(Change{Kind: kind, Historized: true})
	return true
}

func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo() || s.pending
}

func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo() && !s.pending
}

// Elements returns a copy of the element list in paint order.
func (s *Store) Elements() []badge.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return badge.CloneList(s.elements)
}

// Snapshot returns a read-only copy of the whole document.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	elements := badge.CloneList(s.elements)
	if elements == nil {
		elements = []badge.Element{}
	}
	return State{
		Elements:    elements,
		ActiveID:    s.active,
		SelectedIDs: slices.Clone(s.selected),
		Config:      s.cfg,
		CanUndo:     s.history.CanUndo() || s.pending,
		CanRedo:     s.history.CanRedo() && !s.pending,
	}
}

// HistoryLen returns the number of retained history entries.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// ExportTemplate returns the document in interchange form. UpdatedAt is the
// time of the last change.
func (s *Store) ExportTemplate() template.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.meta
	meta.UpdatedAt = s.modified
	meta.VersionHistory = slices.Clone(s.meta.VersionHistory)
	return template.Template{
		Version:     template.CurrentVersion,
		ID:          s.id,
		Name:        s.name,
		Canvas:      s.cfg.Canvas,
		BadgeType:   s.cfg.BadgeType,
		Side:        s.cfg.Side,
		Backgrounds: s.cfg.Backgrounds,
		Elements:    badge.CloneList(s.elements),
		Metadata:    meta,
	}
}

// LoadTemplate replaces the whole document with t and resets history. An
// invalid template leaves the store untouched.
func (s *Store) LoadTemplate(t template.Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	elements := badge.CloneList(t.Elements)
	for i := range elements {
		elements[i].Normalize()
	}
	cfg := DefaultConfig()
	if t.Canvas.Width > 0 && t.Canvas.Height > 0 {
		cfg.Canvas = t.Canvas
	}
	if t.BadgeType != "" {
		cfg.BadgeType = t.BadgeType
	}
	if t.Side != "" {
		cfg.Side = t.Side
	}
	cfg.Backgrounds = t.Backgrounds

	s.mu.Lock()
	s.elements = elements
	s.cfg = cfg
	s.active, s.selected = "", nil
	s.pending = false
	s.history.Reset(elements)
	if t.ID != "" {
		s.id = t.ID
	}
	s.name = t.Name
	s.meta = t.Metadata
	s.meta.VersionHistory = slices.Clone(t.Metadata.VersionHistory)
	s.modified = t.Metadata.UpdatedAt
	if s.modified.IsZero() {
		s.modified = time.Now().UTC()
	}
	s.mu.Unlock()

	s.logger.Info("template loaded", "id", t.ID, "elements", len(elements))
	s.notify(Change{Kind: ChangeLoad})
	return nil
}

// ClearCanvas removes every element and background and resets history.
// Canvas size, badge type and the current side are kept.
func (s *Store) ClearCanvas() {
	s.mu.Lock()
	s.elements = nil
	s.cfg.Backgrounds = template.Backgrounds{}
	s.active, s.selected = "", nil
	s.pending = false
	s.history.Reset(nil)
	s.touch()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeClear})
}
