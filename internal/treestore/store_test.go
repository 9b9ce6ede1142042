package treestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topictree/internal/tree"
)

func TestCreateGetAndListMainTopics(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend(), Options{})

	id, err := st.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, id, 32)

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	_, err = st.InsertComment(ctx, id, "Sports", [][]string{{"Football"}}, "a")
	require.NoError(t, err)
	_, err = st.InsertComment(ctx, id, "Politics", [][]string{{"Elections"}}, "b")
	require.NoError(t, err)

	topics, err := st.ListMainTopics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sports", "Politics"}, topics)

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestGetReturnsFreshCopies(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend(), Options{})
	id, err := st.Create(ctx)
	require.NoError(t, err)

	first, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, first.Insert("Sports", nil, "x"))

	second, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Len())
}

func TestUnknownTreeIsNotFoundAndNotCreated(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	st := New(backend, Options{})
	missing := "0123456789abcdef0123456789abcdef"

	_, err := st.InsertComment(ctx, missing, "Sports", [][]string{{"Football"}}, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.ListMainTopics(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRejectedInsertIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	var saves int
	st := New(NewMemoryBackend(), Options{
		AfterSave: func(context.Context, string, *tree.Tree) { saves++ },
	})
	id, err := st.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, saves)

	_, err = st.InsertComment(ctx, id, "???", [][]string{{"x"}}, "a")
	assert.ErrorIs(t, err, tree.ErrDegenerateLabel)
	assert.Equal(t, 1, saves)
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend(), Options{})
	id, err := st.Create(ctx)
	require.NoError(t, err)

	replacement := tree.New()
	require.NoError(t, replacement.Insert("News", [][]string{{"Local"}}, "c"))
	require.NoError(t, st.Save(ctx, id, replacement))

	topics, err := st.ListMainTopics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"News"}, topics)
}

func TestConcurrentInsertsAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := New(NewMemoryBackend(), Options{})
	id, err := st.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.InsertComment(ctx, id, "Sports", [][]string{{"Football"}}, fmt.Sprintf("comment %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	node, ok := got.Find("sports", "football")
	require.True(t, ok)
	assert.Len(t, node.Comments, 20)
}

func TestLocalLockerHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k", time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	other, err := locker.Lock(context.Background(), "other", time.Second)
	require.NoError(t, err)
	other()
}
