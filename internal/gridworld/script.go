package gridworld

import (
	"fmt"
	"math"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// scriptModules are the Tengo stdlib modules scripts may import. Modules
// with clocks, randomness or I/O are left out so replays stay deterministic.
var scriptModules = []string{"math", "text", "fmt", "enum", "json", "base64", "hex"}

// ScriptRule is a rule written in Tengo.
//
// The script sees these globals:
//
//	moves   [{id, x, y, placed, from_x, from_y}]  position updates; from_* only when placed
//	removed [id]                                  entities being destroyed
//	health  [{id, hp, prev}]                      health updates of existing entities
//	bounds  {min_x, min_y, max_x, max_y}
//
// and may set:
//
//	reject  bool     reject the action
//	stop    bool     skip the remaining rules
//	follow  [{kind, id, x, y, label, amount}]  follow-on actions
//
// A script that fails at run time rejects the action.
type ScriptRule struct {
	name     string
	compiled *tengo.Compiled
}

// CompileScript compiles source once; each evaluation runs a clone.
func CompileScript(name, source string) (*ScriptRule, error) {
	script := tengo.NewScript([]byte(source))
	_ = script.Add("moves", []interface{}{})
	_ = script.Add("removed", []interface{}{})
	_ = script.Add("health", []interface{}{})
	_ = script.Add("bounds", map[string]interface{}{})
	_ = script.Add("reject", false)
	_ = script.Add("stop", false)
	_ = script.Add("follow", []interface{}{})
	script.SetImports(stdlib.GetModuleMap(scriptModules...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile script %q: %w", name, err)
	}
	return &ScriptRule{name: name, compiled: compiled}, nil
}

// Name returns the script's configured name.
func (r *ScriptRule) Name() string { return r.name }

// Rule adapts the script to the engine's rule signature.
func (r *ScriptRule) Rule(w *World) engine.Rule[Action] {
	return func(d *world.Delta, s *world.State, _ *spatial.Set) (engine.Status, engine.Continuation, []Action) {
		reject, stop, follow, err := r.Eval(w, d, s)
		if err != nil {
			w.logger.Error("script rule failed",
				"script", r.name,
				"error", err,
			)
			return engine.Reject, engine.KeepChecking, nil
		}

		status, cont := engine.Accept, engine.KeepChecking
		if reject {
			status = engine.Reject
		}
		if stop {
			cont = engine.StopChecking
		}
		return status, cont, follow
	}
}

// Eval runs the script against d over s.
func (r *ScriptRule) Eval(w *World, d *world.Delta, s *world.State) (reject, stop bool, follow []Action, err error) {
	c := r.compiled.Clone()

	globals := map[string]interface{}{
		"moves":   w.scriptMoves(d, s),
		"removed": w.scriptRemoved(d, s),
		"health":  w.scriptHealth(d, s),
		"bounds": map[string]interface{}{
			"min_x": w.cfg.Bounds.MinX,
			"min_y": w.cfg.Bounds.MinY,
			"max_x": w.cfg.Bounds.MaxX,
			"max_y": w.cfg.Bounds.MaxY,
		},
		"reject": false,
		"stop":   false,
		"follow": []interface{}{},
	}
	for name, v := range globals {
		if err := c.Set(name, v); err != nil {
			return false, false, nil, fmt.Errorf("script %q: set %s: %w", r.name, name, err)
		}
	}

	if err := c.Run(); err != nil {
		return false, false, nil, fmt.Errorf("script %q: %w", r.name, err)
	}

	for i, raw := range c.Get("follow").Array() {
		a, err := actionFromScript(raw)
		if err != nil {
			return false, false, nil, fmt.Errorf("script %q: follow[%d]: %w", r.name, i, err)
		}
		follow = append(follow, a)
	}
	return c.Get("reject").Bool(), c.Get("stop").Bool(), follow, nil
}

func (w *World) scriptMoves(d *world.Delta, s *world.State) []interface{} {
	var out []interface{}
	for _, id := range w.Position.UpdatedIDs(d) {
		p, _ := w.Position.Update(d, id)
		m := map[string]interface{}{
			"id":     int64(id),
			"x":      p.X,
			"y":      p.Y,
			"placed": false,
		}
		if prev, ok := w.Position.Get(s, id); ok {
			m["placed"] = true
			m["from_x"] = prev.X
			m["from_y"] = prev.Y
		}
		out = append(out, m)
	}
	return out
}

func (w *World) scriptRemoved(d *world.Delta, s *world.State) []interface{} {
	var out []interface{}
	for _, id := range w.Label.RemovedIDs(d) {
		if w.Label.Has(s, id) {
			out = append(out, int64(id))
		}
	}
	return out
}

func (w *World) scriptHealth(d *world.Delta, s *world.State) []interface{} {
	var out []interface{}
	for _, id := range w.Health.UpdatedIDs(d) {
		prev, ok := w.Health.Get(s, id)
		if !ok {
			continue
		}
		hp, _ := w.Health.Update(d, id)
		out = append(out, map[string]interface{}{
			"id":   int64(id),
			"hp":   int64(hp),
			"prev": int64(prev),
		})
	}
	return out
}

func actionFromScript(raw interface{}) (Action, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Action{}, fmt.Errorf("%w: expected a map, got %T", ErrInvalidAction, raw)
	}

	var a Action
	kind, _ := m["kind"].(string)
	a.Kind = Kind(kind)

	id, err := scriptID(m)
	if err != nil {
		return Action{}, err
	}
	a.ID = id

	if a.X, err = scriptNumber(m, "x"); err != nil {
		return Action{}, err
	}
	if a.Y, err = scriptNumber(m, "y"); err != nil {
		return Action{}, err
	}
	amount, err := scriptNumber(m, "amount")
	if err != nil {
		return Action{}, err
	}
	a.Amount = int(amount)
	a.Label, _ = m["label"].(string)

	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// scriptID reads the id field. Integers are taken as is; floats must be
// whole and exactly representable.
func scriptID(m map[string]interface{}) (world.EntityID, error) {
	switch v := m["id"].(type) {
	case nil:
		return 0, nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%w: negative id %d", ErrInvalidAction, v)
		}
		return world.EntityID(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return 0, fmt.Errorf("%w: id %g is not a whole number in range", ErrInvalidAction, v)
		}
		return world.EntityID(v), nil
	default:
		return 0, fmt.Errorf("%w: id must be a number, got %T", ErrInvalidAction, v)
	}
}

// scriptNumber reads an optional numeric field; missing fields are zero.
func scriptNumber(m map[string]interface{}, key string) (float64, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidAction, key, v)
	}
}
