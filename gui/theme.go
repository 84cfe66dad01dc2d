//go:build gui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

var (
	candlelight = color.RGBA{28, 20, 24, 255}
	icing       = color.RGBA{235, 220, 225, 255}
	pink        = color.RGBA{255, 95, 175, 255}
	paleGold    = color.RGBA{255, 215, 0, 255}
	ember       = color.RGBA{255, 135, 0, 255}
)

// warmTheme is the dark theme with a candlelit background and pink accents.
type warmTheme struct{}

func (w *warmTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground, theme.ColorNameOverlayBackground:
		return candlelight
	case theme.ColorNameForeground:
		return icing
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return pink
	case theme.ColorNameSuccess:
		return paleGold
	case theme.ColorNameWarning:
		return ember
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func (w *warmTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (w *warmTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// Headings on the card read from across the room.
func (w *warmTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameText:
		return 15
	case theme.SizeNameHeadingText:
		return 28
	}
	return theme.DefaultTheme().Size(name)
}
