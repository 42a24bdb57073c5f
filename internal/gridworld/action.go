package gridworld

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// Kind names an action.
type Kind string

const (
	KindCreate  Kind = "create"
	KindMove    Kind = "move"
	KindDestroy Kind = "destroy"
	KindDamage  Kind = "damage"
	KindHeal    Kind = "heal"
)

// ErrInvalidAction is wrapped by Action.Validate failures.
var ErrInvalidAction = errors.New("invalid action")

// Action is a proposed change to one entity.
//
// X and Y are the target cell of create and move. Amount is the starting
// health of create (0 means the configured default) and the magnitude of
// damage and heal.
type Action struct {
	Kind   Kind           `json:"kind" yaml:"kind"`
	ID     world.EntityID `json:"id" yaml:"id"`
	X      float64        `json:"x,omitempty" yaml:"x,omitempty"`
	Y      float64        `json:"y,omitempty" yaml:"y,omitempty"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Amount int            `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// Validate checks the action's shape. Whether it can apply to the current
// world is decided by the rules.
func (a Action) Validate() error {
	switch a.Kind {
	case KindCreate, KindMove:
		if !isFinite(a.X) || !isFinite(a.Y) {
			return fmt.Errorf("%w: %s position (%g,%g) is not finite", ErrInvalidAction, a.Kind, a.X, a.Y)
		}
	case KindDestroy:
	case KindDamage, KindHeal:
		if a.Amount < 0 {
			return fmt.Errorf("%w: %s amount must not be negative, got %d", ErrInvalidAction, a.Kind, a.Amount)
		}
	case "":
		return fmt.Errorf("%w: missing kind", ErrInvalidAction)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (a Action) String() string {
	switch a.Kind {
	case KindCreate, KindMove:
		return fmt.Sprintf("%s:%d@(%g,%g)", a.Kind, a.ID, a.X, a.Y)
	case KindDamage, KindHeal:
		return fmt.Sprintf("%s:%d/%d", a.Kind, a.ID, a.Amount)
	default:
		return fmt.Sprintf("%s:%d", a.Kind, a.ID)
	}
}

// Populate fills d with the changes a proposes. Reads go through a view of
// (s, d), so later writes in the same action see earlier ones.
func (w *World) Populate(a Action, s *world.State, d *world.Delta, idx *spatial.Set) {
	view := world.NewView(s, d)

	switch a.Kind {
	case KindCreate:
		hp := a.Amount
		if hp <= 0 {
			hp = w.cfg.StartHealth
		}
		w.Position.Insert(d, a.ID, Position{X: a.X, Y: a.Y})
		w.Label.Insert(d, a.ID, labelOrDefault(a.Label, a.ID))
		w.Health.Insert(d, a.ID, hp)

	case KindMove:
		w.Position.Insert(d, a.ID, Position{X: a.X, Y: a.Y})

	case KindDestroy:
		d.RemoveAll(a.ID)

	case KindDamage:
		hp, _ := w.Health.Peek(view, a.ID)
		w.Health.Insert(d, a.ID, hp-a.Amount)

	case KindHeal:
		hp, _ := w.Health.Peek(view, a.ID)
		w.Health.Insert(d, a.ID, hp+a.Amount)
	}
}
