package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topictree/internal/tree"
	"topictree/internal/treestore"
)

func sampleTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr := tree.New()
	require.NoError(t, tr.Insert("Sports", [][]string{{"Football", "Goal"}}, "What a goal"))
	require.NoError(t, tr.Insert("Sports", [][]string{{"Tennis"}}, "Long rally"))
	require.NoError(t, tr.Insert("Weather", nil, "Rainy day"))
	require.NoError(t, tr.Insert("Weather", [][]string{{}}, "Sunny later"))
	return tr
}

func TestRecordsForFlattensComments(t *testing.T) {
	records := RecordsFor("tree1", sampleTree(t))
	require.Len(t, records, 3)

	assert.Equal(t, "Sports", records[0].MainTopic)
	assert.Equal(t, []string{"Football", "Goal"}, records[0].Path)
	assert.Equal(t, []string{"football", "goal"}, records[0].PathKeys)
	assert.Equal(t, "What a goal", records[0].Comment)

	assert.Equal(t, "weather", records[2].MainKey)
	assert.Equal(t, []string{}, records[2].Path)
	assert.Equal(t, "Sunny later", records[2].Comment)

	again := RecordsFor("tree1", sampleTree(t))
	assert.Equal(t, records[0].ID, again[0].ID)
	assert.NotEqual(t, records[0].ID, RecordsFor("tree2", sampleTree(t))[0].ID)
}

func newSource(t *testing.T) (*treestore.Store, string) {
	t.Helper()
	ctx := context.Background()
	st := treestore.New(treestore.NewMemoryBackend(), treestore.Options{})
	id, err := st.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, id, sampleTree(t)))
	return st, id
}

func TestScanMatchesAllTerms(t *testing.T) {
	ctx := context.Background()
	st, id := newSource(t)
	scan := NewScan(st)

	results, total, err := scan.Search(ctx, Query{Text: "GOAL football"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].TreeID)

	results, total, err = scan.Search(ctx, Query{Text: "sports", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 1)
	assert.Equal(t, "Long rally", results[0].Comment)

	results, _, err = scan.Search(ctx, Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, total, err = scan.Search(ctx, Query{Text: "goal", TreeID: "00000000000000000000000000000000"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

type fakeSearcher struct {
	healthy bool
	err     error
	results []Result
	calls   int
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func (f *fakeSearcher) Search(context.Context, Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[string]int
	done    chan struct{}
}

func (f *fakeIndexer) IndexTree(_ context.Context, treeID string, records []CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string]int{}
	}
	f.indexed[treeID] = len(records)
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

func TestServiceFallsBack(t *testing.T) {
	ctx := context.Background()
	primary := &fakeSearcher{healthy: true, err: errors.New("down")}
	unhealthy := &fakeSearcher{healthy: false}
	last := &fakeSearcher{healthy: true, results: []Result{{ID: "r1"}}}

	svc := newServiceWith(primary, nil, nil, unhealthy, last)
	resp := svc.Search(ctx, Query{Text: "goal"})
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, unhealthy.calls)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "goal", resp.Query)

	empty := NewService(nil, nil).Search(ctx, Query{Text: "goal"})
	assert.NotNil(t, empty.Results)
	assert.Zero(t, empty.Total)
}

func TestServiceIndexTreeRunsInBackground(t *testing.T) {
	indexer := &fakeIndexer{done: make(chan struct{}, 1)}
	svc := newServiceWith(&fakeSearcher{healthy: true}, indexer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.IndexTree(ctx, "tree1", sampleTree(t))
	cancel()

	select {
	case <-indexer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree was not indexed")
	}
	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	assert.Equal(t, 3, indexer.indexed["tree1"])
}

func TestServiceReindexAll(t *testing.T) {
	ctx := context.Background()
	st, id := newSource(t)
	other, err := st.Create(ctx)
	require.NoError(t, err)

	indexer := &fakeIndexer{}
	n, err := newServiceWith(nil, indexer, nil).ReindexAll(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, indexer.indexed[id])
	assert.Equal(t, 0, indexer.indexed[other])

	_, err = NewService(nil, nil).ReindexAll(ctx, st)
	assert.Error(t, err)
}

// gatedIndexer blocks its first write until release is closed and keeps
// the last record count per tree.
type gatedIndexer struct {
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	calls   int
	indexed map[string]int
}

func (g *gatedIndexer) IndexTree(_ context.Context, treeID string, records []CommentRecord) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.indexed == nil {
		g.indexed = map[string]int{}
	}
	g.indexed[treeID] = len(records)
	return nil
}

func (g *gatedIndexer) count(treeID string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.indexed[treeID]
	return n, ok
}

func TestServiceIndexTreeKeepsNewestSnapshot(t *testing.T) {
	indexer := &gatedIndexer{started: make(chan struct{}), release: make(chan struct{})}
	svc := newServiceWith(&fakeSearcher{healthy: true}, indexer, nil)
	ctx := context.Background()

	older := tree.New()
	require.NoError(t, older.Insert("Sports", [][]string{{}}, "first"))
	newer := older.Clone()
	require.NoError(t, newer.Insert("Sports", [][]string{{}}, "second"))

	svc.IndexTree(ctx, "tree1", older)
	<-indexer.started
	svc.IndexTree(ctx, "tree1", newer)

	// the newer write must wait for the older one instead of racing it
	time.Sleep(20 * time.Millisecond)
	_, written := indexer.count("tree1")
	assert.False(t, written)

	close(indexer.release)
	require.Eventually(t, func() bool {
		n, _ := indexer.count("tree1")
		return n == 2
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	n, _ := indexer.count("tree1")
	assert.Equal(t, 2, n)
}

func TestServiceDropsSupersededSnapshot(t *testing.T) {
	indexer := &fakeIndexer{}
	svc := newServiceWith(&fakeSearcher{healthy: true}, indexer, nil)
	sl := svc.slot("tree1")

	stale := sl.latest.Add(1)
	sl.latest.Add(1)
	err := svc.indexLatest(context.Background(), sl, stale, "tree1", func() ([]CommentRecord, error) {
		return RecordsFor("tree1", sampleTree(t)), nil
	})
	require.NoError(t, err)
	assert.Empty(t, indexer.indexed)
}
