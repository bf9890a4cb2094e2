package tui

import (
	"github.com/gdamore/tcell/v2"
)

// dbsave color palette
var (
	// Primary accent color
	AccentBlue = tcell.NewRGBColor(59, 130, 246) // #3B82F6

	// Status colors
	SuccessGreen  = tcell.NewRGBColor(34, 197, 94) // #22C55E
	ErrorRed      = tcell.NewRGBColor(239, 68, 68) // #EF4444
	WarningYellow = tcell.NewRGBColor(234, 179, 8) // #EAB308
	LightGray     = tcell.ColorLightGray
)

// Symbols and icons
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"
	SymbolBullet  = "•"
)

// StatusColor returns the appropriate color for a status
func StatusColor(status string) tcell.Color {
	switch status {
	case "success", "ok", "done", "completed":
		return SuccessGreen
	case "error", "failed", "fail":
		return ErrorRed
	case "warning", "warn":
		return WarningYellow
	case "info", "pending", "running":
		return AccentBlue
	default:
		return LightGray
	}
}

// StatusSymbol returns the appropriate symbol for a status
func StatusSymbol(status string) string {
	switch status {
	case "success", "ok", "done", "completed":
		return SymbolSuccess
	case "error", "failed", "fail":
		return SymbolError
	case "warning", "warn":
		return SymbolWarning
	case "info", "pending", "running":
		return SymbolInfo
	default:
		return SymbolBullet
	}
}
