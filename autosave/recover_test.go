package autosave

import (
	"context"
	"errors"
	"testing"

	"github.com/alimasry/go-badge-editor/badge"
	"github.com/alimasry/go-badge-editor/store"
	"github.com/alimasry/go-badge-editor/template"
)

func TestRecover_EmptySlot(t *testing.T) {
	codec, _ := template.NewCodec(template.FormatJSON)
	ok, err := Recover(context.Background(), store.NewMemoryStore(), DefaultKey, codec, newDoc())
	if ok || err != nil {
		t.Errorf("Recover = %v, %v; want false, nil", ok, err)
	}
}

func TestRecover_RoundTrip(t *testing.T) {
	for _, format := range []template.Format{template.FormatJSON, template.FormatCBOR} {
		t.Run(string(format), func(t *testing.T) {
			codec, err := template.NewCodec(format)
			if err != nil {
				t.Fatal(err)
			}
			slots := store.NewMemoryStore()

			src := newDoc()
			addText(t, src, "Jane")
			qr := badge.NewElement(badge.TypeQR)
			qr.Properties.Extra = map[string]any{"errorLevel": "H"}
			src.AddElement(qr)
			src.SetBackgroundImage(template.SideFront, "bg.png")

			s := newScheduler(t, src, slots, WithCodec(codec))
			if err := s.Flush(context.Background()); err != nil {
				t.Fatal(err)
			}

			dst := newDoc()
			addText(t, dst, "stale")
			ok, err := Recover(context.Background(), slots, DefaultKey, codec, dst)
			if !ok || err != nil {
				t.Fatalf("Recover = %v, %v", ok, err)
			}
			if !badge.Equal(dst.Elements(), src.Elements()) {
				t.Error("recovered elements differ from saved ones")
			}
			if dst.CanUndo() {
				t.Error("recovery should reset history")
			}
			if dst.Snapshot().Backgrounds.Front != "bg.png" {
				t.Error("background not recovered")
			}
		})
	}
}

func TestRecover_CorruptSlotLeavesDocument(t *testing.T) {
	codec, _ := template.NewCodec(template.FormatJSON)
	slots := store.NewMemoryStore()
	slots.Put(context.Background(), DefaultKey, []byte(`{"version":"2.0","elements":[{"id":"","type":"text"}]}`))

	doc := newDoc()
	addText(t, doc, "keep me")
	before := doc.Elements()

	ok, err := Recover(context.Background(), slots, DefaultKey, codec, doc)
	if ok || !errors.Is(err, template.ErrInvalidTemplate) {
		t.Fatalf("Recover = %v, %v; want false, ErrInvalidTemplate", ok, err)
	}
	if !badge.Equal(doc.Elements(), before) {
		t.Error("failed recovery modified the document")
	}
}

func TestRecover_OldVersionWithoutMigrator(t *testing.T) {
	codec, _ := template.NewCodec(template.FormatJSON)
	slots := store.NewMemoryStore()
	slots.Put(context.Background(), DefaultKey, []byte(`{"version":"1.0","elements":[]}`))

	_, err := Recover(context.Background(), slots, DefaultKey, codec, newDoc())
	if !errors.Is(err, template.ErrNeedsMigration) {
		t.Errorf("err = %v, want ErrNeedsMigration", err)
	}
}
