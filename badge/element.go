package badge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ElementType tags the variant of an Element.
type ElementType string

const (
	TypeText  ElementType = "text"
	TypeImage ElementType = "image"
	TypeShape ElementType = "shape"
	TypeQR    ElementType = "qr"
)

// Valid reports whether t is one of the known element types.
func (t ElementType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeShape, TypeQR:
		return true
	}
	return false
}

var (
	ErrUnknownType = errors.New("unknown element type")
	ErrMissingID   = errors.New("element id is empty")
)

// Element is one visual object on a badge side. Its position in the
// document's element list is its paint order.
type Element struct {
	ID         string
	Type       ElementType
	Properties Properties
}

// NewID returns a fresh element identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewElement creates an element of type t with a fresh id and default
// properties.
func NewElement(t ElementType) Element {
	return Element{ID: NewID(), Type: t, Properties: NewProperties(t)}
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	return Element{ID: e.ID, Type: e.Type, Properties: e.Properties.clone()}
}

// Normalize gives an element that lacks the property block of its type the
// default block, and drops blocks belonging to other types.
func (e *Element) Normalize() {
	p := e.Properties.clone()
	if !p.hasBlock(e.Type) {
		def := NewProperties(e.Type)
		if p.ScaleX == 0 && p.ScaleY == 0 {
			p.ScaleX, p.ScaleY = 1, 1
		}
		if p.Width == 0 && p.Height == 0 {
			p.Width, p.Height = def.Width, def.Height
		}
		p.Text, p.Image, p.Shape, p.QR = def.Text, def.Image, def.Shape, def.QR
	}
	switch e.Type {
	case TypeText:
		p.Image, p.Shape, p.QR = nil, nil, nil
	case TypeImage:
		p.Text, p.Shape, p.QR = nil, nil, nil
	case TypeShape:
		p.Text, p.Image, p.QR = nil, nil, nil
	case TypeQR:
		p.Text, p.Image, p.Shape = nil, nil, nil
	}
	e.Properties = p
}

// Map returns the flattened wire representation of the element's
// properties, extension keys included.
func (e Element) Map() map[string]any {
	m := make(map[string]any, len(geometryFields)+len(typeFields[e.Type])+len(e.Properties.Extra))
	p := e.Properties
	for k, f := range geometryFields {
		m[k] = f.get(&p)
	}
	if p.hasBlock(e.Type) {
		for k, f := range typeFields[e.Type] {
			m[k] = f.get(&p)
		}
	}
	for k, v := range p.Extra {
		m[k] = cloneValue(v)
	}
	return m
}

// Get returns a single property by wire name.
func (e Element) Get(key string) (any, bool) {
	m := e.Map()
	v, ok := m[key]
	return v, ok
}

// PatchError reports patch keys whose values had the wrong kind for a
// typed property. The remaining keys of the patch were applied.
type PatchError struct {
	ID   string
	Keys []string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("element %q: invalid values for %s", e.ID, strings.Join(e.Keys, ", "))
}

// Apply merges p into the element's properties key by key. Keys that are
// recognized for the element's type land in their typed field; all other
// keys are kept in the extension map.
func (e *Element) Apply(p Patch) error {
	var bad []string
	e.Properties.ensureBlock(e.Type)
	for k, v := range p {
		f, ok := lookupField(e.Type, k)
		if !ok {
			if isUnset(v) {
				delete(e.Properties.Extra, k)
				continue
			}
			if e.Properties.Extra == nil {
				e.Properties.Extra = make(map[string]any)
			}
			e.Properties.Extra[k] = cloneValue(v)
			continue
		}
		if isUnset(v) {
			f.reset(&e.Properties)
			continue
		}
		if !f.set(&e.Properties, v) {
			bad = append(bad, k)
		}
	}
	if len(e.Properties.Extra) == 0 {
		e.Properties.Extra = nil
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return &PatchError{ID: e.ID, Keys: bad}
	}
	return nil
}

// Record is the interchange form of an element used by the template codecs.
type Record struct {
	ID         string         `json:"id" cbor:"id"`
	Type       ElementType    `json:"type" cbor:"type"`
	Properties map[string]any `json:"properties" cbor:"properties"`
}

// Record converts the element to its interchange form.
func (e Element) Record() Record {
	return Record{ID: e.ID, Type: e.Type, Properties: e.Map()}
}

// FromRecord builds an element from its interchange form.
func FromRecord(r Record) (Element, error) {
	if r.ID == "" {
		return Element{}, ErrMissingID
	}
	if !r.Type.Valid() {
		return Element{}, fmt.Errorf("element %q: %w: %q", r.ID, ErrUnknownType, r.Type)
	}
	p := make(Patch, len(r.Properties))
	for k, v := range r.Properties {
		// null is decoded as "not set".
		if v == nil {
			v = Unset
		}
		p[k] = v
	}
	e := Element{ID: r.ID, Type: r.Type, Properties: NewProperties(r.Type)}
	if err := e.Apply(p); err != nil {
		return Element{}, err
	}
	return e, nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	el, err := FromRecord(r)
	if err != nil {
		return err
	}
	*e = el
	return nil
}

// CloneList deep-copies an element list.
func CloneList(elements []Element) []Element {
	if elements == nil {
		return nil
	}
	out := make([]Element, len(elements))
	for i, e := range elements {
		out[i] = e.Clone()
	}
	return out
}

// IndexOf returns the position of the element with the given id, or -1.
func IndexOf(elements []Element, id string) int {
	for i := range elements {
		if elements[i].ID == id {
			return i
		}
	}
	return -1
}

// Equal reports whether two element lists match by id, type and
// serialized properties.
func Equal(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Type != b[i].Type {
			return false
		}
		if len(changedKeys(a[i].Map(), b[i].Map())) > 0 {
			return false
		}
	}
	return true
}
