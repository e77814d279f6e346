package badge

// MaxHistorySize is the default bound on retained history entries.
const MaxHistorySize = 50

// History is a bounded log of diffs with a cursor. Entries past the cursor
// form the redo branch; recording a new diff discards them.
//
// base is the element list before the oldest retained entry, so replaying
// entries[0..index] onto base yields the last recorded state. When the log
// grows past its bound, the oldest entries are folded into base.
type History struct {
	entries []Diff
	index   int
	base    []Element
	last    []Element
	max     int
}

// NewHistory creates a history whose starting state is initial. A
// non-positive max selects MaxHistorySize.
func NewHistory(initial []Element, max int) *History {
	if max <= 0 {
		max = MaxHistorySize
	}
	h := &History{max: max}
	h.Reset(initial)
	return h
}

// Reset drops all entries and makes elements the new starting state.
func (h *History) Reset(elements []Element) {
	h.entries = nil
	h.index = -1
	h.base = CloneList(elements)
	h.last = CloneList(elements)
}

// Record appends a diff describing the transition to current. With a nil
// diff, the change is computed against the last recorded state; Record
// returns false when there is nothing to record.
func (h *History) Record(current []Element, d *Diff) bool {
	var diff Diff
	if d == nil {
		computed, ok := CalculateDiff(h.last, current)
		if !ok {
			return false
		}
		diff = computed
	} else {
		diff = *d
	}

	h.entries = append(h.entries[:h.index+1], diff)
	h.index = len(h.entries) - 1
	h.last = CloneList(current)
	h.fold()
	return true
}

// fold replays entries beyond the bound into base and drops them.
func (h *History) fold() {
	excess := len(h.entries) - h.max
	if excess <= 0 {
		return
	}
	for _, d := range h.entries[:excess] {
		h.base = ApplyDiff(h.base, d)
	}
	kept := make([]Diff, len(h.entries)-excess, h.max)
	copy(kept, h.entries[excess:])
	h.entries = kept
	h.index -= excess
}

// Undo steps the cursor back and returns the state before the undone diff.
func (h *History) Undo() ([]Element, bool) {
	if h.index < 0 {
		return nil, false
	}
	h.last = ApplyDiff(h.last, Invert(h.entries[h.index]))
	h.index--
	return CloneList(h.last), true
}

// Redo re-applies the diff after the cursor and returns the resulting state.
func (h *History) Redo() ([]Element, bool) {
	if h.index >= len(h.entries)-1 {
		return nil, false
	}
	h.index++
	h.last = ApplyDiff(h.last, h.entries[h.index])
	return CloneList(h.last), true
}

func (h *History) CanUndo() bool { return h.index >= 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }

// Len returns the number of retained entries, redo branch included.
func (h *History) Len() int { return len(h.entries) }

// Index returns the cursor: the position of the last applied entry, or -1.
func (h *History) Index() int { return h.index }

// Max returns the bound on retained entries.
func (h *History) Max() int { return h.max }

// Entries returns a copy of the retained diffs.
func (h *History) Entries() []Diff {
	out := make([]Diff, len(h.entries))
	copy(out, h.entries)
	return out
}

// Current returns the last recorded state.
func (h *History) Current() []Element {
	return CloneList(h.last)
}

// Replay rebuilds the current state from base and the entries up to the
// cursor.
func (h *History) Replay() []Element {
	out := CloneList(h.base)
	for _, d := range h.entries[:h.index+1] {
		out = ApplyDiff(out, d)
	}
	return out
}
