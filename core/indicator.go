package core

import "image/color"

// Indicator shows controller state on a status light.
type Indicator interface {
	Show(c color.RGBA) error
}

var (
	ColorFault   = color.RGBA{R: 0x40}
	ColorStale   = color.RGBA{R: 0x30, G: 0x18}
	ColorLocked  = color.RGBA{G: 0x40}
	ColorRunning = color.RGBA{G: 0x10, B: 0x30}
	ColorIdle    = color.RGBA{B: 0x08}
)

// StatusColor picks the indicator color for s. A latched fault wins over
// everything else, then loss of feedback.
func StatusColor(s Status) color.RGBA {
	switch {
	case s.Protection.Latched:
		return ColorFault
	case s.Period.Stale:
		return ColorStale
	case s.Period.Locked:
		return ColorLocked
	case s.Params.Run:
		return ColorRunning
	}
	return ColorIdle
}

// IndicatorUpdater repaints an Indicator when the color changes.
type IndicatorUpdater struct {
	ind  Indicator
	last color.RGBA
	set  bool
}

func NewIndicatorUpdater(ind Indicator) *IndicatorUpdater {
	return &IndicatorUpdater{ind: ind}
}

// Update shows the color for s if it differs from the last one shown.
func (u *IndicatorUpdater) Update(s Status) error {
	c := StatusColor(s)
	if u.set && c == u.last {
		return nil
	}
	if err := u.ind.Show(c); err != nil {
		return err
	}
	u.last, u.set = c, true
	return nil
}
