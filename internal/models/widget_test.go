package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWidgetDefaultsValidate(t *testing.T) {
	valid := []WidgetDefaults{
		{},
		{Variant: VariantPill, Color: "#10b981", Size: SizeSmall},
		{Variant: VariantFloating, Color: "#FFF", Position: "bottom-center"},
		{Variant: VariantCard, Color: "#1f2937cc"},
	}
	for _, w := range valid {
		assert.NoError(t, w.Validate(), "%+v", w)
	}

	invalid := []WidgetDefaults{
		{Variant: "ticker"},
		{Color: "red"},
		{Color: "#12345"},
		{Size: "medium"},
		{Position: "top-right"},
	}
	for _, w := range invalid {
		assert.Error(t, w.Validate(), "%+v", w)
	}
}

func TestWidgetDefaultsNormalize(t *testing.T) {
	w := WidgetDefaults{Variant: " Badge ", Color: " #abc ", Size: "LARGE", Position: "Right-Middle"}.Normalize()
	assert.Equal(t, WidgetDefaults{Variant: VariantBadge, Color: "#abc", Size: SizeLarge, Position: "right-middle"}, w)
	assert.NoError(t, w.Validate())
}
