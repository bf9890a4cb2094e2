// Package tui renders live backup progress with tview.
package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App wraps tview.Application with dbsave-specific configuration
type App struct {
	*tview.Application
}

// NewApp creates a new TUI application with the dbsave theme
func NewApp() *App {
	app := &App{
		Application: tview.NewApplication(),
	}

	// Set global theme colors
	tview.Styles.PrimitiveBackgroundColor = tcell.ColorBlack
	tview.Styles.ContrastBackgroundColor = tcell.ColorBlack
	tview.Styles.MoreContrastBackgroundColor = tcell.ColorDarkSlateGray
	tview.Styles.BorderColor = AccentBlue
	tview.Styles.TitleColor = AccentBlue
	tview.Styles.GraphicsColor = AccentBlue
	tview.Styles.PrimaryTextColor = tcell.ColorWhite
	tview.Styles.SecondaryTextColor = tcell.ColorLightGray
	tview.Styles.TertiaryTextColor = tcell.ColorGray
	tview.Styles.InverseTextColor = tcell.ColorBlack
	tview.Styles.ContrastSecondaryTextColor = tcell.ColorWhite

	return app
}
