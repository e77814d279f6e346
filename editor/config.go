package editor

import (
	"errors"
	"fmt"

	"github.com/alimasry/go-badge-editor/template"
)

var (
	ErrDuplicateID   = errors.New("element id already exists")
	ErrInvalidConfig = errors.New("invalid document configuration")
)

// Default canvas size in pixels.
const (
	DefaultCanvasWidth  = 400
	DefaultCanvasHeight = 600
)

// Config is the non-historized document configuration.
type Config struct {
	Canvas      template.CanvasSize  `json:"canvas"`
	BadgeType   template.BadgeType   `json:"badgeType"`
	Side        template.Side        `json:"currentSide"`
	Backgrounds template.Backgrounds `json:"backgrounds"`
}

// DefaultConfig returns a single-sided badge on the default canvas,
// showing the front.
func DefaultConfig() Config {
	return Config{
		Canvas:    template.CanvasSize{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight},
		BadgeType: template.BadgeSingle,
		Side:      template.SideFront,
	}
}

func validCanvas(w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: canvas %vx%v", ErrInvalidConfig, w, h)
	}
	return nil
}

func validBadgeType(t template.BadgeType) error {
	if t != template.BadgeSingle && t != template.BadgeDouble {
		return fmt.Errorf("%w: badge type %q", ErrInvalidConfig, t)
	}
	return nil
}

func validSide(s template.Side) error {
	if s != template.SideFront && s != template.SideBack {
		return fmt.Errorf("%w: side %q", ErrInvalidConfig, s)
	}
	return nil
}
