package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type intItem int

func (i intItem) Less(other intItem) bool { return i < other }

func TestPriorityQueue_PopsInAscendingOrder(t *testing.T) {
	q := NewPriorityQueue[intItem](nil)
	for _, v := range []intItem{5, 1, 4, 2, 3} {
		q.Push(v)
	}

	var got []intItem
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []intItem{1, 2, 3, 4, 5}, got)
}

func TestPriorityQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewPriorityQueue[intItem](nil)
	q.Push(10)
	q.Push(3)

	top, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, intItem(3), top)
	assert.Equal(t, 2, q.Len())
}

func TestPriorityQueue_EmptyPopReturnsFalse(t *testing.T) {
	q := NewPriorityQueue[intItem](nil)
	_, ok := q.Pop()
	assert.False(t, ok)
}
