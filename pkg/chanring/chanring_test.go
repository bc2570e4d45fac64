package chanring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesSlots(t *testing.T) {
	for _, slots := range []uint64{0, 1, 5} {
		_, err := New[int](slots)
		assert.True(t, errors.Is(err, ErrInvalidCapacity), "slots=%d", slots)
	}
	assert.Panics(t, func() { MustNew[int](0) })
}

func TestFourSlotScenario(t *testing.T) {
	q := MustNew[string](4)
	assert.Equal(t, uint64(3), q.Cap())
	assert.True(t, q.Enqueue("A"))
	assert.True(t, q.Enqueue("B"))
	assert.True(t, q.Enqueue("C"))
	assert.True(t, q.IsFull())
	assert.False(t, q.Enqueue("D"))

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "A", v)
	assert.True(t, q.Enqueue("D"))
	for _, want := range []string{"B", "C", "D"} {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestEnqueueMove(t *testing.T) {
	q := MustNew[string](2)
	s := "x"
	require.True(t, q.EnqueueMove(&s))
	assert.Equal(t, "", s)
	s = "y"
	assert.False(t, q.EnqueueMove(&s))
	assert.Equal(t, "y", s)
	assert.Equal(t, uint64(0), q.FreeSlots())
	assert.Equal(t, uint64(1), q.UsedSlots())
}
