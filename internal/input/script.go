// Package input supplies scripted driver intent to headless runs.
package input

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

var ErrEmptyScript = errors.New("input script has no keyframes")

// Keyframe sets the driver intent from At seconds onward until the next keyframe.
type Keyframe struct {
	At         float64 `json:"at" mapstructure:"at"`
	Vertical   float64 `json:"vertical" mapstructure:"vertical"`
	Horizontal float64 `json:"horizontal" mapstructure:"horizontal"`
	Brake      bool    `json:"brake" mapstructure:"brake"`
}

func (k Keyframe) Input() dynamics.Input {
	return dynamics.Input{Vertical: k.Vertical, Horizontal: k.Horizontal, Brake: k.Brake}
}

// Script is an ordered list of keyframes. Before the first keyframe the
// driver is idle.
type Script []Keyframe

// Validate checks the keyframe times. Axis values are not range-checked.
func (s Script) Validate() error {
	if len(s) == 0 {
		return ErrEmptyScript
	}
	for i, k := range s {
		if math.IsNaN(k.At) || k.At < 0 {
			return fmt.Errorf("keyframe %d: invalid time %v", i, k.At)
		}
	}
	return nil
}

// Sorted returns a copy of s ordered by time. Keyframes sharing a time keep
// their relative order, so the last one wins.
func (s Script) Sorted() Script {
	out := make(Script, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// At returns the intent held at time t.
func (s Script) At(t float64) dynamics.Input {
	idx := sort.Search(len(s), func(i int) bool { return s[i].At > t })
	if idx == 0 {
		return dynamics.Input{}
	}
	return s[idx-1].Input()
}

// Duration returns the time of the last keyframe.
func (s Script) Duration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].At
}

// Constant is an InputSource that never changes.
type Constant dynamics.Input

func (c Constant) ReadInput() dynamics.Input {
	return dynamics.Input(c)
}
