package spatial

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dhconnelly/rtreego"

	"github.com/roach88/worldtx/internal/world"
)

const (
	// Branching bounds of the underlying R-tree nodes.
	minChildren = 25
	maxChildren = 50

	// Half-width of the box stored for each point.
	pointTolerance = 1e-9
)

// Entry is one (position, id) pair held by an Index.
type Entry struct {
	Pos []float64      `json:"pos"`
	ID  world.EntityID `json:"id"`
}

func (e Entry) String() string {
	coords := make([]string, len(e.Pos))
	for i, c := range e.Pos {
		coords[i] = fmt.Sprintf("%g", c)
	}
	return fmt.Sprintf("(%s)->%d", strings.Join(coords, ","), e.ID)
}

type entryKey struct {
	id  world.EntityID
	pos string
}

// keyOf expects canonical coordinates.
func keyOf(pos []float64, id world.EntityID) entryKey {
	var b strings.Builder
	for _, c := range pos {
		fmt.Fprintf(&b, "%016x", math.Float64bits(c))
	}
	return entryKey{id: id, pos: b.String()}
}

// item is the rtreego.Spatial stored in the tree.
type item struct {
	entry Entry
	rect  rtreego.Rect
}

func (it *item) Bounds() rtreego.Rect { return it.rect }

func sameItem(a, b rtreego.Spatial) bool {
	x, y := a.(*item), b.(*item)
	return keyOf(x.entry.Pos, x.entry.ID) == keyOf(y.entry.Pos, y.entry.ID)
}

// canonical returns a copy of pos with -0 folded into 0, and reports
// whether every coordinate is finite.
func canonical(pos []float64) ([]float64, bool) {
	out := slices.Clone(pos)
	for i, c := range out {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return out, false
		}
		if c == 0 {
			out[i] = 0
		}
	}
	return out, true
}

// Index is a set of (position, id) entries for one spatial component type.
// An id may appear at several positions; callers keep it to one through Sync.
type Index struct {
	name    string
	dims    int
	tree    *rtreego.Rtree
	entries map[entryKey]Entry
}

// NewIndex returns an empty index of points with dims coordinates.
func NewIndex(name string, dims int) *Index {
	return &Index{
		name:    name,
		dims:    dims,
		tree:    rtreego.NewTree(dims, minChildren, maxChildren),
		entries: make(map[entryKey]Entry),
	}
}

// Name returns the component the index mirrors.
func (x *Index) Name() string { return x.name }

// Dims returns the dimensionality of indexed points.
func (x *Index) Dims() int { return x.dims }

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.entries) }

// point checks the dimensionality of pos and returns its canonical form.
// ok is false when a coordinate is NaN or infinite; such points are never
// stored.
func (x *Index) point(pos []float64) (p rtreego.Point, ok bool) {
	if len(pos) != x.dims {
		panic(fmt.Sprintf("spatial: %s expects %d coordinates, got %d", x.name, x.dims, len(pos)))
	}
	c, ok := canonical(pos)
	return rtreego.Point(c), ok
}

// Insert adds (pos, id). Inserting an entry that is already present is a
// no-op. Insert panics if a coordinate is NaN or infinite.
func (x *Index) Insert(pos []float64, id world.EntityID) {
	p, ok := x.point(pos)
	if !ok {
		panic(fmt.Sprintf("spatial: %s position %v of %d is not finite", x.name, pos, id))
	}
	k := keyOf(p, id)
	if _, ok := x.entries[k]; ok {
		return
	}
	e := Entry{Pos: p, ID: id}
	x.tree.Insert(&item{entry: e, rect: p.ToRect(pointTolerance)})
	x.entries[k] = e
}

// Remove deletes (pos, id) and reports whether it was present.
// Entries of the same id at other positions are untouched.
func (x *Index) Remove(pos []float64, id world.EntityID) bool {
	p, ok := x.point(pos)
	if !ok {
		return false
	}
	k := keyOf(p, id)
	if _, ok := x.entries[k]; !ok {
		return false
	}
	probe := &item{entry: Entry{Pos: p, ID: id}, rect: p.ToRect(pointTolerance)}
	x.tree.DeleteWithComparator(probe, sameItem)
	delete(x.entries, k)
	return true
}

// Contains reports whether (pos, id) is present.
func (x *Index) Contains(pos []float64, id world.EntityID) bool {
	p, ok := x.point(pos)
	if !ok {
		return false
	}
	_, ok = x.entries[keyOf(p, id)]
	return ok
}

// Entries returns every entry ordered by id, then position.
func (x *Index) Entries() []Entry {
	out := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// At returns the ids with an entry exactly at pos, sorted.
func (x *Index) At(pos []float64) []world.EntityID {
	p, ok := x.point(pos)
	if !ok {
		return nil
	}
	want := keyOf(p, 0).pos
	var ids []world.EntityID
	for _, s := range x.tree.SearchIntersect(p.ToRect(pointTolerance)) {
		it := s.(*item)
		if keyOf(it.entry.Pos, 0).pos == want {
			ids = append(ids, it.entry.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Within returns the entries inside the closed box [lo, hi], ordered by id.
// A box with a NaN or infinite corner matches nothing.
func (x *Index) Within(lo, hi []float64) []Entry {
	a, okA := x.point(lo)
	b, okB := x.point(hi)
	if !okA || !okB {
		return nil
	}
	corner := make(rtreego.Point, x.dims)
	lengths := make([]float64, x.dims)
	for i := range corner {
		lower, upper := math.Min(a[i], b[i]), math.Max(a[i], b[i])
		corner[i] = lower - pointTolerance
		lengths[i] = upper - lower + 2*pointTolerance
	}
	box, err := rtreego.NewRect(corner, lengths)
	if err != nil {
		panic(fmt.Sprintf("spatial: query box: %v", err))
	}

	var out []Entry
	for _, s := range x.tree.SearchIntersect(box) {
		e := s.(*item).entry
		if inside(e.Pos, a, b) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// Nearest returns up to k entries closest to pos, nearest first. Entries at
// equal distance are ordered by id.
func (x *Index) Nearest(pos []float64, k int) []Entry {
	if k <= 0 || len(x.entries) == 0 {
		return nil
	}
	p, ok := x.point(pos)
	if !ok {
		return nil
	}
	var out []Entry
	for _, s := range x.tree.NearestNeighbors(k, p) {
		if s == nil {
			continue
		}
		out = append(out, s.(*item).entry)
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(distance(a.Pos, p), distance(b.Pos, p)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Clear removes every entry.
func (x *Index) Clear() {
	x.tree = rtreego.NewTree(x.dims, minChildren, maxChildren)
	clear(x.entries)
}

func inside(p, a, b []float64) bool {
	for i := range p {
		lower, upper := math.Min(a[i], b[i]), math.Max(a[i], b[i])
		if p[i] < lower || p[i] > upper {
			return false
		}
	}
	return true
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func sortEntries(es []Entry) {
	slices.SortFunc(es, func(a, b Entry) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return slices.Compare(a.Pos, b.Pos)
	})
}
