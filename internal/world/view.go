package world

// View is a read-only overlay of a Delta over a State. It answers what a
// component would hold if the delta committed, without committing it.
type View struct {
	state *State
	delta *Delta
}

// NewView returns a view of d over s.
func NewView(s *State, d *Delta) View {
	mustShareSchema(s.schema, d.schema)
	return View{state: s, delta: d}
}

// State returns the underlying committed state.
func (v View) State() *State { return v.state }

// Delta returns the overlaid delta.
func (v View) Delta() *Delta { return v.delta }

// Lookup resolves ref for id: a queued update wins, a queued removal yields
// absence, otherwise the committed value is returned.
func (v View) Lookup(ref ComponentRef, id EntityID) (any, bool) {
	if val, ok := v.delta.LookupUpdate(ref, id); ok {
		return val, true
	}
	if v.delta.IsRemoved(ref, id) {
		return nil, false
	}
	return v.state.Lookup(ref, id)
}
