package models

import (
	"fmt"
	"regexp"
	"strings"
)

// WidgetVariant is the visual style of the embedded counter.
type WidgetVariant string

const (
	VariantPill     WidgetVariant = "pill"
	VariantBadge    WidgetVariant = "badge"
	VariantCard     WidgetVariant = "card"
	VariantFloating WidgetVariant = "floating"
)

// WidgetSize applies to the pill variant.
type WidgetSize string

const (
	SizeSmall WidgetSize = "small"
	SizeLarge WidgetSize = "large"
)

// TabPosition anchors the floating variant to the viewport.
type TabPosition string

var (
	hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

	variants  = map[WidgetVariant]struct{}{VariantPill: {}, VariantBadge: {}, VariantCard: {}, VariantFloating: {}}
	sizes     = map[WidgetSize]struct{}{SizeSmall: {}, SizeLarge: {}}
	positions = map[TabPosition]struct{}{
		"left-upper": {}, "left-middle": {}, "left-lower": {},
		"bottom-left": {}, "bottom-center": {}, "bottom-right": {},
		"right-upper": {}, "right-middle": {}, "right-lower": {},
	}
)

// WidgetDefaults is the display configuration chosen when a token is created.
// Every field is optional; the loader falls back to its own defaults.
type WidgetDefaults struct {
	Variant  WidgetVariant `json:"variant,omitempty"`
	Color    string        `json:"color,omitempty"`
	Size     WidgetSize    `json:"size,omitempty"`
	Position TabPosition   `json:"position,omitempty"`
}

// Normalize trims and lowercases the enumerated fields.
func (w WidgetDefaults) Normalize() WidgetDefaults {
	return WidgetDefaults{
		Variant:  WidgetVariant(strings.ToLower(strings.TrimSpace(string(w.Variant)))),
		Color:    strings.TrimSpace(w.Color),
		Size:     WidgetSize(strings.ToLower(strings.TrimSpace(string(w.Size)))),
		Position: TabPosition(strings.ToLower(strings.TrimSpace(string(w.Position)))),
	}
}

// Validate reports the first field holding a value outside its domain.
func (w WidgetDefaults) Validate() error {
	if w.Variant != "" {
		if _, ok := variants[w.Variant]; !ok {
			return fmt.Errorf("invalid widget variant %q", w.Variant)
		}
	}
	if w.Color != "" && !hexColorRe.MatchString(w.Color) {
		return fmt.Errorf("invalid widget color %q", w.Color)
	}
	if w.Size != "" {
		if _, ok := sizes[w.Size]; !ok {
			return fmt.Errorf("invalid widget size %q", w.Size)
		}
	}
	if w.Position != "" {
		if _, ok := positions[w.Position]; !ok {
			return fmt.Errorf("invalid widget position %q", w.Position)
		}
	}
	return nil
}
