package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(100), c.Current(), "clock should start at specified value")
	assert.Equal(t, int64(101), c.Next())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				c.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestUUIDv7Generator_ValidVersion(t *testing.T) {
	token := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(token)
	require.NoError(t, err, "token should be valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator_Sequence(t *testing.T) {
	gen := NewFixedGenerator("c-1", "c-2")

	assert.Equal(t, 2, gen.Remaining())
	assert.Equal(t, "c-1", gen.Generate())
	assert.Equal(t, "c-2", gen.Generate())
	assert.Equal(t, 0, gen.Remaining())
	assert.Panics(t, func() { gen.Generate() })
}

func TestQuotaEnforcer_ExceedsLimit(t *testing.T) {
	q := NewQuotaEnforcer(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Check("c"))
	}
	err := q.Check("c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 steps > 3 limit")

	q.Reset()
	assert.Equal(t, 0, q.Current())
	assert.Equal(t, 3, q.MaxSteps())
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := NewIndexDivergedError("c-1", 7, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsIndexDivergedError(err))
	assert.Equal(t, "7", err.Details["seq"])
	assert.Contains(t, err.Error(), "INDEX_DIVERGED")
	assert.Contains(t, err.Error(), "cascade=c-1")
	assert.False(t, IsIndexDivergedError(&StepsExceededError{}))
}

func TestEventQueue_FIFO(t *testing.T) {
	var q EventQueue[string]

	_, ok := q.Pop()
	assert.False(t, ok, "pop from empty queue")

	q.Push("a")
	q.Push("b")
	q.Push("c")

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", head)
	assert.Equal(t, 3, q.Len())

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", got)

	assert.Equal(t, []string{"b", "c"}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_ZeroesPoppedSlot(t *testing.T) {
	var q queue[*int]
	v := 1
	q.push(&v)
	q.push(&v)

	backing := q.items
	q.pop()

	assert.Nil(t, backing[0])
	assert.Equal(t, 1, q.len())
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "keep", KeepChecking.String())
	assert.Equal(t, "stop", StopChecking.String())
}
