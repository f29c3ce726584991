package transit

import (
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// Key identifies one independent window state machine.
type Key struct {
	Target body.Body
	Angle  int
}

// Span is a closed aspect window.
type Span struct {
	Start     time.Time
	Peak      time.Time
	End       time.Time
	OrbAtPeak float64
	PeakLon   float64 // moving body longitude at the peak sample
	Truncated bool
}

// Window tracks entry into and exit from one aspect orb over a
// chronological sample stream. A separation equal to the orb counts as
// inside.
type Window struct {
	Orb float64

	Inside  bool
	Start   time.Time
	Best    time.Time
	BestSep float64
	BestLon float64
}

// NewWindow returns a closed window for the given orb.
func NewWindow(orb float64) *Window {
	return &Window{Orb: orb}
}

// Update feeds one sample. It returns the finished span when the sample
// closes an open window.
func (w *Window) Update(t time.Time, sep, lon float64) (Span, bool) {
	if w.Inside {
		if sep < w.BestSep {
			w.Best = t
			w.BestSep = sep
			w.BestLon = lon
		}
		if sep > w.Orb {
			span := w.span(t, false)
			w.reset()
			return span, true
		}
		return Span{}, false
	}

	if sep <= w.Orb {
		w.Inside = true
		w.Start = t
		w.Best = t
		w.BestSep = sep
		w.BestLon = lon
	}
	return Span{}, false
}

// Finalize closes a window still open at the end of the scan, truncating
// it at end rather than dropping it.
func (w *Window) Finalize(end time.Time) (Span, bool) {
	if !w.Inside {
		return Span{}, false
	}
	span := w.span(end, true)
	w.reset()
	return span, true
}

func (w *Window) span(end time.Time, truncated bool) Span {
	return Span{
		Start:     w.Start,
		Peak:      w.Best,
		End:       end,
		OrbAtPeak: w.BestSep,
		PeakLon:   w.BestLon,
		Truncated: truncated,
	}
}

func (w *Window) reset() {
	orb := w.Orb
	*w = Window{Orb: orb}
}
