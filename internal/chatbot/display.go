package chatbot

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

// display renders one answer while it streams; every Update replaces the previous text
type display interface {
	Update(text string)
	Stop()
}

// areaDisplay redraws a live pterm area in place
type areaDisplay struct {
	area *pterm.AreaPrinter
}

func newAreaDisplay() (display, error) {
	pterm.Println(pterm.Bold.Sprint("Bot:"))
	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start output area: %w", err)
	}
	return &areaDisplay{area: area}, nil
}

func (d *areaDisplay) Update(text string) {
	d.area.Update(text)
}

func (d *areaDisplay) Stop() {
	_ = d.area.Stop()
	pterm.Println()
}

// textDisplay writes only the final text, for non-terminal output
type textDisplay struct {
	w    io.Writer
	last string
}

func (d *textDisplay) Update(text string) {
	d.last = text
}

func (d *textDisplay) Stop() {
	fmt.Fprintf(d.w, "Bot: %s\n\n", d.last)
}
