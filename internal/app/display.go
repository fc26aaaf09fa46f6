package app

import (
	"sync/atomic"

	"github.com/abhisek/flashdrill/internal/integrity"
)

// Display maps the integrity monitor's window port onto the terminal:
// fullscreen is the alternate screen buffer. A terminal has no navigation
// history, so PinHistory only counts the confirmed prompts.
type Display struct {
	fullscreen atomic.Bool
	pins       atomic.Int32
}

var _ integrity.Display = (*Display)(nil)

func (d *Display) RequestFullscreen() error {
	d.fullscreen.Store(true)
	return nil
}

func (d *Display) ExitFullscreen() error {
	d.fullscreen.Store(false)
	return nil
}

func (d *Display) PinHistory() {
	d.pins.Add(1)
}

// Fullscreen reports whether the program should render on the alt screen.
func (d *Display) Fullscreen() bool {
	return d.fullscreen.Load()
}

// Pins returns how many navigation prompts were confirmed.
func (d *Display) Pins() int {
	return int(d.pins.Load())
}
