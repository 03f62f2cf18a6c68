package es

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_AppendAssignsGlobalSeq(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	res, err := AppendEvents(ctx, store, "counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.LastSeq)

	res, err = AppendEvents(ctx, store, "counter", "b", 0, &counterCreated{Name: "b"}, &counterIncremented{By: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, res.LastSeq)

	all, err := store.ReadLog(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, env := range all {
		assert.EqualValues(t, i+1, env.Seq, "positions are gap-free and strictly increasing")
	}
}

func TestInMemoryStore_AppendConflict(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	_, err := AppendEvents(ctx, store, "counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)

	// second writer raced on the same expected version
	_, err = AppendEvents(ctx, store, "counter", "a", 0, &counterCreated{Name: "a"})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	// the losing append persisted nothing
	events, err := store.Load(ctx, "counter", "a")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	all, err := store.ReadLog(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInMemoryStore_LoadUnknownStream(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	_, err := store.Load(t.Context(), "counter", "nope")
	require.ErrorIs(t, err, ErrAggregateNotFound)
}

func TestInMemoryStore_ReadLogPagination(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	_, err := AppendEvents(ctx, store, "counter", "a", 0,
		&counterCreated{Name: "a"},
		&counterIncremented{By: 1},
		&counterIncremented{By: 2},
		&counterIncremented{By: 3},
		&counterIncremented{By: 4},
	)
	require.NoError(t, err)

	page, err := store.ReadLog(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 1, page[0].Seq)
	assert.EqualValues(t, 2, page[1].Seq)

	// resume from the last seen position
	page, err = store.ReadLog(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 3, page[0].Seq)

	page, err = store.ReadLog(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.EqualValues(t, 5, page[0].Seq)

	page, err = store.ReadLog(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestInMemoryStore_Cursors(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	_, err := store.Get(ctx, "sub-1")
	require.ErrorIs(t, err, ErrCursorNotFound)

	require.NoError(t, store.Set(ctx, "sub-1", 42))
	pos, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, pos)
}

func TestInMemoryStore_CommitProcess(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	envs, err := EncodeEvents("counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)

	err = store.CommitProcess(ctx, "sub-1", 7, []ProcessAppend{
		{AggType: "counter", AggID: "a", Expect: 0, Events: envs},
	})
	require.NoError(t, err)

	events, err := store.Load(ctx, "counter", "a")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	pos, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, pos)
}

func TestInMemoryStore_CommitProcessSameStreamTwice(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	first, err := EncodeEvents("counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)
	second, err := EncodeEvents("counter", "a", 1, &counterIncremented{By: 1})
	require.NoError(t, err)

	// chained appends to one stream commit as long as each names the head
	// the previous one produces
	err = store.CommitProcess(ctx, "sub-1", 5, []ProcessAppend{
		{AggType: "counter", AggID: "a", Expect: 0, Events: first},
		{AggType: "counter", AggID: "a", Expect: 1, Events: second},
	})
	require.NoError(t, err)

	events, err := store.Load(ctx, "counter", "a")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestInMemoryStore_CommitProcessSameStreamConflictLeavesNothing(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	one, err := EncodeEvents("counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)
	two, err := EncodeEvents("counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)

	// both target version 0 of the same stream: the second conflicts with
	// the head the first would produce, so neither may land
	err = store.CommitProcess(ctx, "sub-1", 5, []ProcessAppend{
		{AggType: "counter", AggID: "a", Expect: 0, Events: one},
		{AggType: "counter", AggID: "a", Expect: 0, Events: two},
	})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	_, err = store.Load(ctx, "counter", "a")
	require.ErrorIs(t, err, ErrAggregateNotFound)
	_, err = store.Get(ctx, "sub-1")
	require.ErrorIs(t, err, ErrCursorNotFound)
}

func TestInMemoryStore_CommitProcessConflictLeavesNothing(t *testing.T) {
	store := NewInMemoryStore(testLogger())
	ctx := t.Context()

	_, err := AppendEvents(ctx, store, "counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "sub-1", 1))

	fresh, err := EncodeEvents("counter", "b", 0, &counterCreated{Name: "b"})
	require.NoError(t, err)
	stale, err := EncodeEvents("counter", "a", 0, &counterCreated{Name: "a"})
	require.NoError(t, err)

	err = store.CommitProcess(ctx, "sub-1", 9, []ProcessAppend{
		{AggType: "counter", AggID: "b", Expect: 0, Events: fresh},
		{AggType: "counter", AggID: "a", Expect: 0, Events: stale},
	})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	// neither append landed, the cursor did not move
	_, err = store.Load(ctx, "counter", "b")
	require.ErrorIs(t, err, ErrAggregateNotFound)
	pos, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pos)
}
