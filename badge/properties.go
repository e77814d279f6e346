package badge

import (
	"encoding/json"
	"math"
	"slices"
)

// Geometry holds the placement keys shared by every element type.
type Geometry struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
	Angle  float64
	ScaleX float64
	ScaleY float64
}

type TextProps struct {
	Content    string
	FontSize   float64
	FontFamily string
	FontWeight string
	Fill       string
	TextAlign  string
}

type ImageProps struct {
	Src string
}

type ShapeProps struct {
	ShapeType   string
	Fill        string
	Stroke      string
	StrokeWidth float64
}

type QRProps struct {
	QRData string
	Size   float64
}

// Properties is the typed property set of an element. Exactly one of the
// type blocks is set, matching the element's type. Keys the editor does not
// know about are carried in Extra so they survive a round trip.
type Properties struct {
	Geometry

	Text  *TextProps
	Image *ImageProps
	Shape *ShapeProps
	QR    *QRProps

	Extra map[string]any
}

// NewProperties returns the default property set for an element type.
func NewProperties(t ElementType) Properties {
	p := Properties{Geometry: Geometry{ScaleX: 1, ScaleY: 1}}
	switch t {
	case TypeText:
		p.Geometry.Width, p.Geometry.Height = 200, 40
		p.Text = &TextProps{FontSize: 16, FontFamily: "Arial", FontWeight: "normal", Fill: "#000000", TextAlign: "left"}
	case TypeImage:
		p.Geometry.Width, p.Geometry.Height = 100, 100
		p.Image = &ImageProps{}
	case TypeShape:
		p.Geometry.Width, p.Geometry.Height = 100, 100
		p.Shape = &ShapeProps{ShapeType: "rectangle", Fill: "#cccccc", Stroke: "#000000", StrokeWidth: 1}
	case TypeQR:
		p.Geometry.Width, p.Geometry.Height = 128, 128
		p.QR = &QRProps{Size: 128}
	}
	return p
}

func (p Properties) hasBlock(t ElementType) bool {
	switch t {
	case TypeText:
		return p.Text != nil
	case TypeImage:
		return p.Image != nil
	case TypeShape:
		return p.Shape != nil
	case TypeQR:
		return p.QR != nil
	}
	return false
}

func (p *Properties) ensureBlock(t ElementType) {
	switch t {
	case TypeText:
		if p.Text == nil {
			p.Text = &TextProps{}
		}
	case TypeImage:
		if p.Image == nil {
			p.Image = &ImageProps{}
		}
	case TypeShape:
		if p.Shape == nil {
			p.Shape = &ShapeProps{}
		}
	case TypeQR:
		if p.QR == nil {
			p.QR = &QRProps{}
		}
	}
}

func (p Properties) clone() Properties {
	out := Properties{Geometry: p.Geometry}
	if p.Text != nil {
		t := *p.Text
		out.Text = &t
	}
	if p.Image != nil {
		i := *p.Image
		out.Image = &i
	}
	if p.Shape != nil {
		s := *p.Shape
		out.Shape = &s
	}
	if p.QR != nil {
		q := *p.QR
		out.QR = &q
	}
	if p.Extra != nil {
		out.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = cloneValue(v)
		}
	}
	return out
}

// Patch is a partial property update keyed by wire name.
type Patch map[string]any

type unset struct{}

// Unset as a patch value removes an extension key, or resets a typed
// property to its zero value.
var Unset = unset{}

func isUnset(v any) bool {
	_, ok := v.(unset)
	return ok
}

// field binds a wire key to a typed property.
type field struct {
	get   func(*Properties) any
	set   func(*Properties, any) bool
	reset func(*Properties)
}

func number(ptr func(*Properties) *float64) field {
	return field{
		get: func(p *Properties) any { return *ptr(p) },
		set: func(p *Properties, v any) bool {
			f, ok := toFloat(v)
			if ok {
				*ptr(p) = f
			}
			return ok
		},
		reset: func(p *Properties) { *ptr(p) = 0 },
	}
}

func text(ptr func(*Properties) *string) field {
	return field{
		get: func(p *Properties) any { return *ptr(p) },
		set: func(p *Properties, v any) bool {
			s, ok := v.(string)
			if ok {
				*ptr(p) = s
			}
			return ok
		},
		reset: func(p *Properties) { *ptr(p) = "" },
	}
}

var geometryFields = map[string]field{
	"left":   number(func(p *Properties) *float64 { return &p.Left }),
	"top":    number(func(p *Properties) *float64 { return &p.Top }),
	"width":  number(func(p *Properties) *float64 { return &p.Width }),
	"height": number(func(p *Properties) *float64 { return &p.Height }),
	"angle":  number(func(p *Properties) *float64 { return &p.Angle }),
	"scaleX": number(func(p *Properties) *float64 { return &p.ScaleX }),
	"scaleY": number(func(p *Properties) *float64 { return &p.ScaleY }),
}

var typeFields = map[ElementType]map[string]field{
	TypeText: {
		"content":    text(func(p *Properties) *string { return &p.Text.Content }),
		"fontSize":   number(func(p *Properties) *float64 { return &p.Text.FontSize }),
		"fontFamily": text(func(p *Properties) *string { return &p.Text.FontFamily }),
		"fontWeight": text(func(p *Properties) *string { return &p.Text.FontWeight }),
		"fill":       text(func(p *Properties) *string { return &p.Text.Fill }),
		"textAlign":  text(func(p *Properties) *string { return &p.Text.TextAlign }),
	},
	TypeImage: {
		"src": text(func(p *Properties) *string { return &p.Image.Src }),
	},
	TypeShape: {
		"shapeType":   text(func(p *Properties) *string { return &p.Shape.ShapeType }),
		"fill":        text(func(p *Properties) *string { return &p.Shape.Fill }),
		"stroke":      text(func(p *Properties) *string { return &p.Shape.Stroke }),
		"strokeWidth": number(func(p *Properties) *float64 { return &p.Shape.StrokeWidth }),
	},
	TypeQR: {
		"qrData": text(func(p *Properties) *string { return &p.QR.QRData }),
		"size":   number(func(p *Properties) *float64 { return &p.QR.Size }),
	},
}

// lookupField finds the typed property for key on elements of type t.
func lookupField(t ElementType, key string) (field, bool) {
	if f, ok := geometryFields[key]; ok {
		return f, true
	}
	f, ok := typeFields[t][key]
	return f, ok
}

// KnownKeys lists the typed property keys recognized for t.
func KnownKeys(t ElementType) []string {
	keys := make([]string, 0, len(geometryFields)+len(typeFields[t]))
	for k := range geometryFields {
		keys = append(keys, k)
	}
	for k := range typeFields[t] {
		keys = append(keys, k)
	}
	return keys
}

// toFloat converts a numeric value to a finite float64.
func toFloat(v any) (float64, bool) {
	f, ok := numeric(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// cloneValue deep-copies the container types produced by JSON and CBOR
// decoding; scalars are returned as is.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case Patch:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []byte:
		return slices.Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
