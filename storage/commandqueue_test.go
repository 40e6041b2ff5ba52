package storage

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommandQueue(t *testing.T) *SQLCommandQueue {
	t.Helper()
	q, err := NewSQLCommandQueue(sqlite.Open(":memory:"))
	require.NoError(t, err)
	return q
}

func TestSQLCommandQueue_SubmitThenDequeueReturnsUnacked(t *testing.T) {
	q := newTestCommandQueue(t)

	id, err := q.Submit(`{"action":"liquidate"}`)
	require.NoError(t, err)
	assert.NotZero(t, id)

	cmds, err := q.Dequeue()
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, id, cmds[0].ID)
	assert.Equal(t, `{"action":"liquidate"}`, cmds[0].Payload)
}

func TestSQLCommandQueue_AckRemovesFromDequeue(t *testing.T) {
	q := newTestCommandQueue(t)

	id, err := q.Submit("noop")
	require.NoError(t, err)

	require.NoError(t, q.Ack(id, true, "done"))

	cmds, err := q.Dequeue()
	require.NoError(t, err)
	assert.Empty(t, cmds, "an acked command must not be redelivered")
}

func TestSQLCommandQueue_DequeuePreservesSubmissionOrder(t *testing.T) {
	q := newTestCommandQueue(t)

	firstID, err := q.Submit("first")
	require.NoError(t, err)
	secondID, err := q.Submit("second")
	require.NoError(t, err)

	cmds, err := q.Dequeue()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, firstID, cmds[0].ID)
	assert.Equal(t, secondID, cmds[1].ID)
}
