package badge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// DiffKind identifies the variant of a Diff.
type DiffKind string

const (
	DiffAdd     DiffKind = "add"
	DiffUpdate  DiffKind = "update"
	DiffDelete  DiffKind = "delete"
	DiffReorder DiffKind = "reorder"
	DiffFull    DiffKind = "full"
)

// Diff describes how to turn one element list into another. Each diff
// also carries what it overwrote, so Invert can build the undo step
// without replaying history.
type Diff struct {
	Kind DiffKind

	// add, update, delete
	ElementID string
	// add: insert position (append when out of range); delete: position
	// the element was removed from.
	Index int
	// add: the added element; delete: the removed element.
	Element *Element

	// update: new values for the changed keys, and the values they replaced.
	Patch   Patch
	Inverse Patch

	// reorder
	From, To int

	// full: the list after and before the change.
	Elements []Element
	Previous []Element
}

func (d Diff) String() string {
	switch d.Kind {
	case DiffAdd, DiffDelete:
		return fmt.Sprintf("%s(%s@%d)", d.Kind, d.ElementID, d.Index)
	case DiffUpdate:
		return fmt.Sprintf("update(%s, %d keys)", d.ElementID, len(d.Patch))
	case DiffReorder:
		return fmt.Sprintf("reorder(%d->%d)", d.From, d.To)
	case DiffFull:
		return fmt.Sprintf("full(%d elements)", len(d.Elements))
	}
	return string(d.Kind)
}

// AddDiff records el being inserted at index.
func AddDiff(el Element, index int) Diff {
	c := el.Clone()
	return Diff{Kind: DiffAdd, ElementID: el.ID, Index: index, Element: &c}
}

// DeleteDiff records el being removed from index.
func DeleteDiff(el Element, index int) Diff {
	c := el.Clone()
	return Diff{Kind: DiffDelete, ElementID: el.ID, Index: index, Element: &c}
}

// ReorderDiff records the element at from moving to to.
func ReorderDiff(from, to int) Diff {
	return Diff{Kind: DiffReorder, From: from, To: to}
}

// FullDiff records a wholesale replacement of the element list.
func FullDiff(before, after []Element) Diff {
	return Diff{Kind: DiffFull, Elements: CloneList(after), Previous: CloneList(before)}
}

// CalculateDiff returns the change from old to next, or false when the lists
// are equal. A single changed element yields an update carrying only the
// changed keys; anything else (length or identity change, or more than one
// changed element) falls back to a full snapshot.
func CalculateDiff(old, next []Element) (Diff, bool) {
	if len(old) != len(next) {
		return FullDiff(old, next), true
	}
	for i := range old {
		if old[i].ID != next[i].ID || old[i].Type != next[i].Type {
			return FullDiff(old, next), true
		}
	}

	var (
		found bool
		diff  Diff
	)
	for i := range old {
		before, after := old[i].Map(), next[i].Map()
		keys := changedKeys(before, after)
		if len(keys) == 0 {
			continue
		}
		if found {
			return FullDiff(old, next), true
		}
		found = true
		diff = Diff{
			Kind:      DiffUpdate,
			ElementID: next[i].ID,
			Index:     i,
			Patch:     make(Patch, len(keys)),
			Inverse:   make(Patch, len(keys)),
		}
		for _, k := range keys {
			diff.Patch[k] = valueOrUnset(after, k)
			diff.Inverse[k] = valueOrUnset(before, k)
		}
	}
	return diff, found
}

func valueOrUnset(m map[string]any, k string) any {
	v, ok := m[k]
	if !ok {
		return Unset
	}
	return cloneValue(v)
}

// changedKeys lists the keys whose serialized values differ between a and b.
func changedKeys(a, b map[string]any) []string {
	var keys []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !sameValue(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

// ApplyDiff returns a new element list with d applied. The input list is
// not modified. Reorder indices must be in range.
func ApplyDiff(elements []Element, d Diff) []Element {
	out := CloneList(elements)
	switch d.Kind {
	case DiffFull:
		return CloneList(d.Elements)
	case DiffAdd:
		if d.Element == nil {
			return out
		}
		return insertAt(out, d.Index, d.Element.Clone())
	case DiffUpdate:
		i := IndexOf(out, d.ElementID)
		if i < 0 {
			return out
		}
		// Values in the diff were validated when it was recorded.
		_ = out[i].Apply(d.Patch)
	case DiffDelete:
		i := IndexOf(out, d.ElementID)
		if i < 0 {
			return out
		}
		return append(out[:i], out[i+1:]...)
	case DiffReorder:
		return move(out, d.From, d.To)
	}
	return out
}

// Invert returns the diff that undoes d.
func Invert(d Diff) Diff {
	switch d.Kind {
	case DiffAdd:
		return Diff{Kind: DiffDelete, ElementID: d.ElementID, Index: d.Index, Element: d.Element}
	case DiffDelete:
		return Diff{Kind: DiffAdd, ElementID: d.ElementID, Index: d.Index, Element: d.Element}
	case DiffUpdate:
		return Diff{Kind: DiffUpdate, ElementID: d.ElementID, Index: d.Index, Patch: d.Inverse, Inverse: d.Patch}
	case DiffReorder:
		return Diff{Kind: DiffReorder, From: d.To, To: d.From}
	case DiffFull:
		return Diff{Kind: DiffFull, Elements: d.Previous, Previous: d.Elements}
	}
	return d
}

func insertAt(elements []Element, i int, el Element) []Element {
	if i < 0 || i >= len(elements) {
		return append(elements, el)
	}
	elements = append(elements, Element{})
	copy(elements[i+1:], elements[i:])
	elements[i] = el
	return elements
}

func move(elements []Element, from, to int) []Element {
	el := elements[from]
	elements = append(elements[:from], elements[from+1:]...)
	elements = append(elements, Element{})
	copy(elements[to+1:], elements[to:])
	elements[to] = el
	return elements
}
