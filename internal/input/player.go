package input

import "github.com/kartlab/vehiclesim/pkg/dynamics"

// Player replays a Script as a dynamics.InputSource. The frame loop seeks it
// to the current frame time before the controller samples it.
type Player struct {
	script Script
	now    float64
	cursor int
}

var _ dynamics.InputSource = (*Player)(nil)

// NewPlayer sorts a copy of script and positions the player at t=0.
func NewPlayer(script Script) *Player {
	return &Player{script: script.Sorted()}
}

// Seek moves the playhead to t seconds. Seeking forward is amortised O(1);
// seeking backward rescans from the start.
func (p *Player) Seek(t float64) {
	if t < p.now {
		p.cursor = 0
	}
	p.now = t
	for p.cursor < len(p.script) && p.script[p.cursor].At <= t {
		p.cursor++
	}
}

// Now returns the playhead time.
func (p *Player) Now() float64 {
	return p.now
}

// ReadInput returns the intent held at the playhead.
func (p *Player) ReadInput() dynamics.Input {
	if p.cursor == 0 {
		return dynamics.Input{}
	}
	return p.script[p.cursor-1].Input()
}

// Done reports whether the playhead passed the last keyframe.
func (p *Player) Done() bool {
	return p.cursor >= len(p.script)
}
