package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alimasry/go-badge-editor/store"
	"github.com/alimasry/go-badge-editor/template"
)

// Loader replaces a document wholesale.
type Loader interface {
	LoadTemplate(t template.Template) error
}

// Recover reads the slot at key and loads it into doc. It reports false
// with a nil error when the slot is empty. A read, decode or load failure
// is logged and returned, and doc is left as it was.
func Recover(ctx context.Context, slots store.SlotStore, key string, codec *template.Codec, doc Loader) (bool, error) {
	logger := slog.Default().With("component", "autosave", "key", key)
	ctx, span := tracer.Start(ctx, "autosave.recover", trace.WithAttributes(
		attribute.String("autosave.key", key),
	))
	defer span.End()

	fail := func(err error) (bool, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("autosave recovery failed", "error", err)
		return false, err
	}

	data, err := slots.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		span.AddEvent("empty slot")
		return false, nil
	}
	if err != nil {
		return fail(fmt.Errorf("read slot: %w", err))
	}
	span.SetAttributes(attribute.Int("autosave.bytes", len(data)))

	t, err := codec.Decode(ctx, data)
	if err != nil {
		return fail(fmt.Errorf("decode: %w", err))
	}
	if err := doc.LoadTemplate(t); err != nil {
		return fail(err)
	}
	logger.Info("document recovered", "template", t.ID, "elements", len(t.Elements))
	return true, nil
}
