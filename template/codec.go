package template

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/alimasry/go-badge-editor/badge"
)

// Format selects the byte encoding of a template.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unknown template format %q", s)
}

// Migrator upgrades a decoded template of an older version to the current
// one. raw is the generic decoded document; the returned map must carry
// CurrentVersion.
type Migrator interface {
	Migrate(ctx context.Context, fromVersion string, raw map[string]any) (map[string]any, error)
}

// MigratorFunc adapts a function to the Migrator interface.
type MigratorFunc func(ctx context.Context, fromVersion string, raw map[string]any) (map[string]any, error)

func (f MigratorFunc) Migrate(ctx context.Context, fromVersion string, raw map[string]any) (map[string]any, error) {
	return f(ctx, fromVersion, raw)
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMigrator routes templates of other versions through m.
func WithMigrator(m Migrator) CodecOption {
	return func(c *Codec) { c.migrator = m }
}

// Codec encodes and decodes templates in a single format.
type Codec struct {
	format   Format
	migrator Migrator
	enc      cbor.EncMode
	dec      cbor.DecMode
}

// NewCodec builds a codec for the given format.
func NewCodec(format Format, opts ...CodecOption) (*Codec, error) {
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCBOR {
		return nil, fmt.Errorf("unknown template format %q", format)
	}
	c := &Codec{format: format}
	for _, opt := range opts {
		opt(c)
	}

	encOpts := cbor.CanonicalEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	enc, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}
	c.enc, c.dec = enc, dec
	return c, nil
}

// Format returns the codec's encoding.
func (c *Codec) Format() Format { return c.format }

// document is the serialized layout of a Template.
type document struct {
	Version     string         `json:"version" cbor:"version"`
	ID          string         `json:"id" cbor:"id"`
	Name        string         `json:"name,omitempty" cbor:"name,omitempty"`
	Canvas      CanvasSize     `json:"canvas" cbor:"canvas"`
	BadgeType   BadgeType      `json:"badgeType" cbor:"badgeType"`
	Side        Side           `json:"currentSide" cbor:"currentSide"`
	Backgrounds Backgrounds    `json:"backgrounds" cbor:"backgrounds"`
	Elements    []badge.Record `json:"elements" cbor:"elements"`
	Metadata    Metadata       `json:"metadata" cbor:"metadata"`
}

// Encode serializes t. An empty version is written as CurrentVersion.
func (c *Codec) Encode(t Template) ([]byte, error) {
	d := document{
		Version:     t.Version,
		ID:          t.ID,
		Name:        t.Name,
		Canvas:      t.Canvas,
		BadgeType:   t.BadgeType,
		Side:        t.Side,
		Backgrounds: t.Backgrounds,
		Elements:    make([]badge.Record, len(t.Elements)),
		Metadata:    t.Metadata,
	}
	if d.Version == "" {
		d.Version = CurrentVersion
	}
	for i, el := range t.Elements {
		d.Elements[i] = el.Record()
	}
	return c.marshal(d)
}

// Decode parses data into a validated template. Documents of another
// version go through the configured migrator.
func (c *Codec) Decode(ctx context.Context, data []byte) (Template, error) {
	var raw map[string]any
	if err := c.unmarshal(data, &raw); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	version, _ := raw["version"].(string)
	if version == "" {
		return Template{}, ErrMissingVersion
	}

	migrated := false
	if version != CurrentVersion {
		if c.migrator == nil {
			return Template{}, fmt.Errorf("%w: version %q", ErrNeedsMigration, version)
		}
		out, err := c.migrator.Migrate(ctx, version, raw)
		if err != nil {
			return Template{}, fmt.Errorf("migrate from %s: %w", version, err)
		}
		if v, _ := out["version"].(string); v != CurrentVersion {
			return Template{}, fmt.Errorf("%w: migrator returned version %q", ErrNeedsMigration, v)
		}
		if data, err = c.marshal(out); err != nil {
			return Template{}, fmt.Errorf("re-encode migrated template: %w", err)
		}
		migrated = true
	}

	var d document
	if err := c.unmarshal(data, &d); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	t := Template{
		Version:     d.Version,
		ID:          d.ID,
		Name:        d.Name,
		Canvas:      d.Canvas,
		BadgeType:   d.BadgeType,
		Side:        d.Side,
		Backgrounds: d.Backgrounds,
		Elements:    make([]badge.Element, 0, len(d.Elements)),
		Metadata:    d.Metadata,
	}
	for i, r := range d.Elements {
		el, err := badge.FromRecord(r)
		if err != nil {
			return Template{}, fmt.Errorf("%w: element %d: %v", ErrInvalidTemplate, i, err)
		}
		t.Elements = append(t.Elements, el)
	}
	if migrated {
		t.Metadata.VersionHistory = append(t.Metadata.VersionHistory, VersionEntry{
			Version: CurrentVersion,
			At:      time.Now().UTC(),
			Note:    "migrated from " + version,
		})
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (c *Codec) marshal(v any) ([]byte, error) {
	if c.format == FormatCBOR {
		return c.enc.Marshal(v)
	}
	return json.Marshal(v)
}

func (c *Codec) unmarshal(data []byte, v any) error {
	if c.format == FormatCBOR {
		return c.dec.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
