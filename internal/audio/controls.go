package audio

import (
	"sync"
	"sync/atomic"
)

// ControlState is one consistent snapshot of the shared volume controls.
type ControlState struct {
	Mute         bool
	Duck         bool
	DuckingLevel float64
	MasterVolume float64
}

// Gain is the combined multiplier. Mute and duck are independent gates;
// mute wins regardless of duck.
func (s *ControlState) Gain() float64 {
	if s.Mute {
		return 0
	}
	g := s.MasterVolume
	if s.Duck {
		g *= s.DuckingLevel
	}
	return g
}

// Controls holds mute, duck, ducking level and master volume. Writers
// replace the whole snapshot; the mixer reads it with one atomic load.
type Controls struct {
	mu    sync.Mutex // serializes writers only
	state atomic.Pointer[ControlState]
}

// NewControls creates controls with mute and duck off.
func NewControls(duckingLevel, masterVolume float64) *Controls {
	c := &Controls{}
	c.state.Store(&ControlState{
		DuckingLevel: clamp01(duckingLevel),
		MasterVolume: clamp01(masterVolume),
	})
	return c
}

// Load returns the current snapshot. Callers must not modify it.
func (c *Controls) Load() *ControlState {
	return c.state.Load()
}

func (c *Controls) update(fn func(s *ControlState)) {
	c.mu.Lock()
	next := *c.state.Load()
	fn(&next)
	c.state.Store(&next)
	c.mu.Unlock()
}

func (c *Controls) SetMute(mute bool) { c.update(func(s *ControlState) { s.Mute = mute }) }
func (c *Controls) Mute() bool        { return c.Load().Mute }

func (c *Controls) SetDuck(duck bool) { c.update(func(s *ControlState) { s.Duck = duck }) }
func (c *Controls) Duck() bool        { return c.Load().Duck }

// SetDuckingLevel sets the level music is ducked to, clamped to [0,1].
func (c *Controls) SetDuckingLevel(level float64) {
	c.update(func(s *ControlState) { s.DuckingLevel = clamp01(level) })
}
func (c *Controls) DuckingLevel() float64 { return c.Load().DuckingLevel }

// SetMasterVolume sets the output volume, clamped to [0,1].
func (c *Controls) SetMasterVolume(v float64) {
	c.update(func(s *ControlState) { s.MasterVolume = clamp01(v) })
}
func (c *Controls) MasterVolume() float64 { return c.Load().MasterVolume }
