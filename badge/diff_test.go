package badge

import "testing"

func textElement(id, content string) Element {
	el := Element{ID: id, Type: TypeText, Properties: NewProperties(TypeText)}
	el.Properties.Text.Content = content
	return el
}

func ids(elements []Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.ID
	}
	return out
}

func sameIDs(a []Element, want ...string) bool {
	got := ids(a)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCalculateDiff(t *testing.T) {
	a := textElement("a", "A")
	b := textElement("b", "B")
	a2 := a.Clone()
	a2.Properties.Text.Content = "A2"
	b2 := b.Clone()
	b2.Properties.Left = 99

	tests := []struct {
		name     string
		old, new []Element
		wantOK   bool
		wantKind DiffKind
	}{
		{"no change", []Element{a, b}, []Element{a.Clone(), b.Clone()}, false, ""},
		{"both empty", nil, nil, false, ""},
		{"length grew", []Element{a}, []Element{a, b}, true, DiffFull},
		{"length shrank", []Element{a, b}, []Element{b}, true, DiffFull},
		{"ids swapped", []Element{a, b}, []Element{b, a}, true, DiffFull},
		{"single element changed", []Element{a, b}, []Element{a2, b}, true, DiffUpdate},
		{"two elements changed", []Element{a, b}, []Element{a2, b2}, true, DiffFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := CalculateDiff(tt.old, tt.new)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && d.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", d.Kind, tt.wantKind)
			}
			if ok && !Equal(ApplyDiff(tt.old, d), tt.new) {
				t.Errorf("ApplyDiff(old, %v) does not reproduce new", d)
			}
			if ok && !Equal(ApplyDiff(tt.new, Invert(d)), tt.old) {
				t.Errorf("ApplyDiff(new, Invert(%v)) does not reproduce old", d)
			}
		})
	}
}

func TestCalculateDiff_UpdateCarriesOnlyChangedKeys(t *testing.T) {
	a := textElement("a", "before")
	a.Properties.Extra = map[string]any{"keep": 1.0, "drop": "x"}
	changed := a.Clone()
	changed.Properties.Text.Content = "after"
	changed.Properties.Extra = map[string]any{"keep": 1.0, "added": true}

	d, ok := CalculateDiff([]Element{a}, []Element{changed})
	if !ok || d.Kind != DiffUpdate {
		t.Fatalf("got %v ok=%v, want update", d, ok)
	}
	if len(d.Patch) != 3 {
		t.Errorf("patch = %v, want 3 keys (content, drop, added)", d.Patch)
	}
	if d.Patch["content"] != "after" || d.Inverse["content"] != "before" {
		t.Errorf("content patch/inverse = %v/%v", d.Patch["content"], d.Inverse["content"])
	}
	if !isUnset(d.Patch["drop"]) {
		t.Errorf("removed key should be Unset in patch, got %v", d.Patch["drop"])
	}
	if !isUnset(d.Inverse["added"]) {
		t.Errorf("new key should be Unset in inverse, got %v", d.Inverse["added"])
	}
	if _, ok := d.Patch["keep"]; ok {
		t.Error("unchanged key included in patch")
	}
}

func TestApplyDiff(t *testing.T) {
	x, y, z := textElement("x", "X"), textElement("y", "Y"), textElement("z", "Z")
	w := textElement("w", "W")

	tests := []struct {
		name string
		in   []Element
		diff Diff
		want []string
	}{
		{"add appends", []Element{x, y}, AddDiff(w, 2), []string{"x", "y", "w"}},
		{"add out of range appends", []Element{x}, AddDiff(w, 10), []string{"x", "w"}},
		{"add at index", []Element{x, y}, AddDiff(w, 1), []string{"x", "w", "y"}},
		{"delete", []Element{x, y, z}, DeleteDiff(y, 1), []string{"x", "z"}},
		{"delete unknown", []Element{x}, DeleteDiff(w, 0), []string{"x"}},
		{"reorder forward", []Element{x, y, z}, ReorderDiff(0, 2), []string{"y", "z", "x"}},
		{"reorder backward", []Element{x, y, z}, ReorderDiff(2, 0), []string{"z", "x", "y"}},
		{"full", []Element{x}, FullDiff([]Element{x}, []Element{z, y}), []string{"z", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyDiff(tt.in, tt.diff)
			if !sameIDs(got, tt.want...) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestApplyDiff_DoesNotMutateInput(t *testing.T) {
	in := []Element{textElement("a", "A"), textElement("b", "B")}
	ApplyDiff(in, ReorderDiff(0, 1))
	ApplyDiff(in, Diff{Kind: DiffUpdate, ElementID: "a", Patch: Patch{"content": "changed"}})
	ApplyDiff(in, DeleteDiff(in[0], 0))

	if !sameIDs(in, "a", "b") {
		t.Errorf("input order changed: %v", ids(in))
	}
	if in[0].Properties.Text.Content != "A" {
		t.Errorf("input element mutated: %q", in[0].Properties.Text.Content)
	}
}

func TestInvert_RoundTrip(t *testing.T) {
	x, y, z := textElement("x", "X"), textElement("y", "Y"), textElement("z", "Z")
	start := []Element{x, y, z}

	diffs := []Diff{
		AddDiff(textElement("w", "W"), 1),
		DeleteDiff(y, 1),
		ReorderDiff(0, 2),
		{Kind: DiffUpdate, ElementID: "z", Patch: Patch{"content": "Z2", "extra": 1.0}, Inverse: Patch{"content": "Z", "extra": Unset}},
		FullDiff(start, []Element{z}),
	}
	for _, d := range diffs {
		t.Run(string(d.Kind), func(t *testing.T) {
			after := ApplyDiff(start, d)
			back := ApplyDiff(after, Invert(d))
			if !Equal(back, start) {
				t.Errorf("undo of %v: got %v, want %v", d, ids(back), ids(start))
			}
		})
	}
}
