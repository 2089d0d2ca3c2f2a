package input

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

func lapScript() Script {
	return Script{
		{At: 4, Vertical: 0, Brake: true},
		{At: 0, Vertical: 1},
		{At: 2, Vertical: 1, Horizontal: -0.5},
		{At: 6, Vertical: -1},
	}
}

func TestScript_Validate(t *testing.T) {
	tests := []struct {
		name    string
		script  Script
		wantErr bool
	}{
		{"valid", lapScript(), false},
		{"empty", Script{}, true},
		{"negative time", Script{{At: -1}}, true},
		{"nan time", Script{{At: math.NaN()}}, true},
		{"out of range axes are allowed", Script{{At: 0, Vertical: 3, Horizontal: -7}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.script.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.ErrorIs(t, Script{}.Validate(), ErrEmptyScript)
}

func TestScript_At(t *testing.T) {
	s := lapScript().Sorted()

	assert.Equal(t, 6.0, s.Duration())
	assert.Equal(t, dynamics.Input{Vertical: 1}, s.At(0))
	assert.Equal(t, dynamics.Input{Vertical: 1}, s.At(1.99))
	assert.Equal(t, dynamics.Input{Vertical: 1, Horizontal: -0.5}, s.At(2))
	assert.Equal(t, dynamics.Input{Brake: true}, s.At(5))
	assert.Equal(t, dynamics.Input{Vertical: -1}, s.At(100))

	late := Script{{At: 1, Vertical: 1}}
	assert.Equal(t, dynamics.Input{}, late.At(0.5), "idle before first keyframe")
}

func TestScript_SortedKeepsOrderOfTies(t *testing.T) {
	s := Script{{At: 1, Vertical: 1}, {At: 1, Vertical: -1}}.Sorted()

	assert.Equal(t, dynamics.Input{Vertical: -1}, s.At(1))
}

func TestScript_SortedCopies(t *testing.T) {
	s := lapScript()
	_ = s.Sorted()

	assert.Equal(t, 4.0, s[0].At)
}

func TestPlayer_FollowsScript(t *testing.T) {
	p := NewPlayer(lapScript())

	var got []dynamics.Input
	for _, ts := range []float64{0, 1, 2.5, 4, 5.9, 6} {
		p.Seek(ts)
		got = append(got, p.ReadInput())
	}

	want := []dynamics.Input{
		{Vertical: 1},
		{Vertical: 1},
		{Vertical: 1, Horizontal: -0.5},
		{Brake: true},
		{Brake: true},
		{Vertical: -1},
	}
	assert.Equal(t, want, got)
	assert.True(t, p.Done())
	assert.Equal(t, 6.0, p.Now())
}

func TestPlayer_SeekBackward(t *testing.T) {
	p := NewPlayer(lapScript())

	p.Seek(5)
	require.Equal(t, dynamics.Input{Brake: true}, p.ReadInput())

	p.Seek(1)
	assert.Equal(t, dynamics.Input{Vertical: 1}, p.ReadInput())
	assert.False(t, p.Done())
}

func TestPlayer_IdleBeforeStart(t *testing.T) {
	p := NewPlayer(Script{{At: 3, Vertical: 1}})

	p.Seek(0)
	assert.Equal(t, dynamics.Input{}, p.ReadInput())
}

func TestConstant(t *testing.T) {
	var src dynamics.InputSource = Constant{Vertical: 0.5, Brake: true}

	assert.Equal(t, dynamics.Input{Vertical: 0.5, Brake: true}, src.ReadInput())
}
