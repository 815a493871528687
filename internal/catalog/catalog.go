// Package catalog maps track names to playable definitions loaded from a
// YAML file:
//
//	tracks:
//	  overworld:
//	    intro: overworld_intro
//	    loop: overworld_loop
//	    volume: 0.8
//	  jingle:
//	    loop: jingle
//	    repeat: false
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/hunterbridges/bgmkit/internal/audio"
)

// ErrUnknownTrack means a name is not in the catalog.
var ErrUnknownTrack = errors.New("unknown track")

// TrackSpec is one catalog entry as written in YAML.
type TrackSpec struct {
	Intro  string   `yaml:"intro" json:"intro,omitempty"`
	Loop   string   `yaml:"loop" json:"loop"`
	Volume *float64 `yaml:"volume" json:"volume,omitempty"`
	Repeat *bool    `yaml:"repeat" json:"repeat,omitempty"`
	Format string   `yaml:"format" json:"format,omitempty"`
}

type file struct {
	Tracks map[string]TrackSpec `yaml:"tracks"`
}

// Catalog is an immutable set of named tracks.
type Catalog struct {
	names  []string
	specs  map[string]TrackSpec
	tracks map[string]*audio.TrackDefinition
}

// Parse decodes and validates a catalog. Every entry must build a valid
// track definition.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: unmarshal: %w", err)
	}
	c := &Catalog{
		specs:  make(map[string]TrackSpec, len(f.Tracks)),
		tracks: make(map[string]*audio.TrackDefinition, len(f.Tracks)),
	}
	for name, spec := range f.Tracks {
		def, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("catalog: track %q: %w", name, err)
		}
		c.names = append(c.names, name)
		c.specs[name] = spec
		c.tracks[name] = def
	}
	slices.Sort(c.names)
	return c, nil
}

// Load reads and parses the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", path, err)
	}
	return Parse(data)
}

func (s TrackSpec) build() (*audio.TrackDefinition, error) {
	var opts []audio.TrackOption
	if s.Volume != nil {
		opts = append(opts, audio.WithBaseVolume(*s.Volume))
	}
	if s.Repeat != nil {
		opts = append(opts, audio.WithLoop(*s.Repeat))
	}
	opts = append(opts, audio.WithFormat(audio.ParseTrackFormat(s.Format)))
	return audio.NewTrack(s.Intro, s.Loop, opts...)
}

// Track returns the definition registered under name.
func (c *Catalog) Track(name string) (*audio.TrackDefinition, error) {
	if c != nil {
		if t, ok := c.tracks[name]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, name)
}

// Spec returns the YAML entry for name.
func (c *Catalog) Spec(name string) (TrackSpec, bool) {
	if c == nil {
		return TrackSpec{}, false
	}
	s, ok := c.specs[name]
	return s, ok
}

// Names lists the track names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.names)
}

// NameOf finds the catalog name of a definition, if any.
func (c *Catalog) NameOf(t *audio.TrackDefinition) (string, bool) {
	if c == nil || t == nil {
		return "", false
	}
	for _, name := range c.names {
		if c.tracks[name].Equal(t) {
			return name, true
		}
	}
	return "", false
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}
