package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, f fixture) *State {
	t.Helper()
	st := f.schema.NewState()
	d := f.schema.NewDelta()
	f.pos.Insert(d, 1, pos{1, 2})
	f.name.Insert(d, 1, "alpha")
	f.hp.Insert(d, 1, 10)
	f.name.Insert(d, 2, "beta")
	st.Commit(d)
	return st
}

func TestSnapshot_RoundTripPreservesDigest(t *testing.T) {
	f := newFixture()
	st := seeded(t, f)

	sn, err := st.Snapshot()
	require.NoError(t, err)
	data, err := sn.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	restored, err := f.schema.Restore(decoded)
	require.NoError(t, err)

	want, err := st.Digest()
	require.NoError(t, err)
	got, err := restored.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	p, ok := f.pos.Get(restored, 1)
	require.True(t, ok)
	assert.Equal(t, pos{1, 2}, p)
}

func TestSnapshot_IncludesEmptyComponents(t *testing.T) {
	f := newFixture()
	st := f.schema.NewState()

	sn, err := st.Snapshot()
	require.NoError(t, err)
	assert.Len(t, sn.Components, 3)
	assert.Contains(t, sn.Components, "hp")
}

func TestSnapshot_EncodingIsStable(t *testing.T) {
	f := newFixture()
	a := seeded(t, f)
	b := f.schema.NewState()
	b.Commit(a.ToDelta())

	snA, err := a.Snapshot()
	require.NoError(t, err)
	snB, err := b.Snapshot()
	require.NoError(t, err)
	dataA, err := snA.Encode()
	require.NoError(t, err)
	dataB, err := snB.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(dataA), string(dataB))
}

func TestRestore_UnknownComponent(t *testing.T) {
	f := newFixture()
	sn := Snapshot{Components: map[string]map[EntityID]json.RawMessage{
		"mana": {1: json.RawMessage(`3`)},
	}}

	_, err := f.schema.Restore(sn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestRestore_BadValue(t *testing.T) {
	f := newFixture()
	sn := Snapshot{Components: map[string]map[EntityID]json.RawMessage{
		"hp": {1: json.RawMessage(`"not a number"`)},
	}}

	_, err := f.schema.Restore(sn)
	assert.Error(t, err)
}

func TestDigest_ChangesWithState(t *testing.T) {
	f := newFixture()
	st := seeded(t, f)

	before, err := st.Digest()
	require.NoError(t, err)
	sumBefore, err := st.Checksum()
	require.NoError(t, err)

	d := f.schema.NewDelta()
	f.hp.Insert(d, 1, 9)
	st.Commit(d)

	after, err := st.Digest()
	require.NoError(t, err)
	sumAfter, err := st.Checksum()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.NotEqual(t, sumBefore, sumAfter)
	assert.Len(t, after, 64)
}
