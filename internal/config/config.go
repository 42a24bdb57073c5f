// Package config loads the world configuration of the gridworld host.
//
// Configuration files are CUE. A file is unified with the embedded #World
// definition, which supplies defaults and rejects unknown fields, then
// decoded into World.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid world config")

// Bounds is the closed rectangle entities may occupy.
type Bounds struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Script is a scripted rule. Exactly one of Source and File is set; Load
// replaces File with the file's contents.
type Script struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// World configures the gridworld host.
type World struct {
	Bounds         Bounds   `json:"bounds" yaml:"bounds"`
	ExclusiveCells bool     `json:"exclusive_cells" yaml:"exclusive_cells"`
	StartHealth    int      `json:"start_health" yaml:"start_health"`
	MaxSteps       int      `json:"max_steps" yaml:"max_steps"`
	Census         bool     `json:"census" yaml:"census"`
	Scripts        []Script `json:"scripts" yaml:"scripts"`
}

// Default returns the configuration of an empty CUE file.
func Default() World {
	return World{
		Bounds:         Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
		ExclusiveCells: true,
		StartHealth:    10,
	}
}

// Validate checks constraints that span fields.
func (w World) Validate() error {
	if w.Bounds.MaxX <= w.Bounds.MinX || w.Bounds.MaxY <= w.Bounds.MinY {
		return fmt.Errorf("%w: bounds max must exceed min, got %+v", ErrInvalid, w.Bounds)
	}
	if w.StartHealth <= 0 {
		return fmt.Errorf("%w: start_health must be positive, got %d", ErrInvalid, w.StartHealth)
	}
	if w.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps must not be negative, got %d", ErrInvalid, w.MaxSteps)
	}
	seen := make(map[string]bool, len(w.Scripts))
	for _, s := range w.Scripts {
		if s.Name == "" {
			return fmt.Errorf("%w: script without a name", ErrInvalid)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate script %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if (s.Source == "") == (s.File == "") {
			return fmt.Errorf("%w: script %q needs exactly one of source or file", ErrInvalid, s.Name)
		}
	}
	return nil
}

// Load reads a CUE configuration file. Script files are resolved relative
// to the configuration's directory and inlined as sources.
func Load(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, fmt.Errorf("read config: %w", err)
	}
	w, err := Parse(data, path)
	if err != nil {
		return World{}, err
	}

	if err := w.InlineScripts(filepath.Dir(path)); err != nil {
		return World{}, err
	}
	return w, nil
}

// InlineScripts replaces every script File, resolved relative to dir, with
// the file's contents.
func (w *World) InlineScripts(dir string) error {
	for i, s := range w.Scripts {
		if s.File == "" {
			continue
		}
		path := s.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script %q: %w", s.Name, err)
		}
		w.Scripts[i].Source = string(src)
		w.Scripts[i].File = ""
	}
	return nil
}

// Parse decodes CUE source. filename is only used in error positions.
func Parse(data []byte, filename string) (World, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return World{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#World"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return World{}, fmt.Errorf("%w: %s: %v", ErrInvalid, filename, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return World{}, fmt.Errorf("%w: %s: %v", ErrInvalid, filename, err)
	}

	var w World
	if err := unified.Decode(&w); err != nil {
		return World{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	if err := w.Validate(); err != nil {
		return World{}, err
	}
	return w, nil
}
