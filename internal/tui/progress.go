package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rivo/tview"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const barWidth = 40

var phaseTitler = cases.Title(language.English)

// ProgressView shows per-file backup progress. Its Progress method
// satisfies the backup listener contract and is safe to call from the
// backup goroutine while the application runs on the main one.
type ProgressView struct {
	app  *App
	view *tview.TextView

	mu    sync.Mutex
	done  map[string]bool
	order []string
	last  string
}

// NewProgressView creates the progress view and installs it as the
// application root.
func NewProgressView(app *App, title string) *ProgressView {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	view.SetBorder(true).
		SetTitle(" " + title + " ").
		SetTitleAlign(tview.AlignCenter)
	app.SetRoot(view, true)

	return &ProgressView{
		app:  app,
		view: view,
		done: make(map[string]bool),
	}
}

// Progress records a progress event and schedules a redraw.
func (p *ProgressView) Progress(state, name string, current, total int) {
	p.mu.Lock()
	if !p.done[name] {
		p.done[name] = false
		p.order = append(p.order, name)
	}
	if current >= total {
		p.done[name] = true
	}
	p.last = fmt.Sprintf("%s %s %s %s",
		humanState(state), name, renderBar(current, total, barWidth),
		percentLabel(current, total))
	text := p.renderLocked()
	p.mu.Unlock()

	p.app.QueueUpdateDraw(func() {
		p.view.SetText(text)
	})
}

// Finish replaces the live line with a final status and schedules a
// redraw. The application keeps running until the caller stops it.
func (p *ProgressView) Finish(err error) {
	p.mu.Lock()
	if err != nil {
		p.last = fmt.Sprintf("%s%s backup failed: %v[-]",
			statusTag("failed"), StatusSymbol("failed"), err)
	} else {
		p.last = fmt.Sprintf("%s%s backup completed[-]",
			statusTag("done"), StatusSymbol("done"))
	}
	text := p.renderLocked()
	p.mu.Unlock()

	p.app.QueueUpdateDraw(func() {
		p.view.SetText(text)
	})
}

func (p *ProgressView) renderLocked() string {
	var b strings.Builder
	for _, name := range p.order {
		if p.done[name] {
			fmt.Fprintf(&b, "%s%s[-] %s\n", statusTag("done"), StatusSymbol("done"), name)
		}
	}
	b.WriteString(p.last)
	return b.String()
}

// statusTag renders a status as a tview color tag.
func statusTag(status string) string {
	return fmt.Sprintf("[#%06x]", StatusColor(status).Hex())
}

// humanState turns an event state like "BACKUP_FILE" into "Backup File".
func humanState(state string) string {
	return phaseTitler.String(strings.ReplaceAll(strings.ToLower(state), "_", " "))
}

// renderBar draws a fixed-width progress bar.
func renderBar(current, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 {
		filled = current * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func percentLabel(current, total int) string {
	if total <= 0 {
		return "100%"
	}
	pct := current * 100 / total
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%d%%", pct)
}
