package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/evault/evault/internal/document"
	"github.com/evault/evault/internal/integrity"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func sampleDoc(id, owner string, at time.Time) *document.Document {
	d := document.New(id, owner, document.ContentState{Fingerprint: integrity.Digest("f-" + id), Anchor: integrity.AnchorToken("a-" + id), StorageKey: "key-" + id}, at)
	d.Title = "title " + id
	return d
}

func TestMemoryRepoCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := sampleDoc("d1", "alice", time.Now())
	require.NoError(t, r.Create(ctx, d))
	require.ErrorIs(t, r.Create(ctx, d), ErrExists)

	got, err := r.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "title d1", got.Title)
	require.Equal(t, int64(1), got.Revision)

	// mutating the returned copy does not touch the store
	got.Title = "changed"
	again, _ := r.Get(ctx, "d1")
	require.Equal(t, "title d1", again.Title)

	upd, err := r.Update(ctx, "d1", func(d *document.Document) error {
		d.Title = "new"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "new", upd.Title)
	require.Equal(t, int64(2), upd.Revision)

	_, err = r.Update(ctx, "missing", func(*document.Document) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err := r.Delete(ctx, "d1", nil)
	require.NoError(t, err)
	require.Equal(t, "d1", deleted.ID)
	_, err = r.Get(ctx, "d1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepoAbortedMutationLeavesRecord(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.NoError(t, r.Create(ctx, sampleDoc("d1", "alice", time.Now())))

	denied := errors.New("denied")
	_, err := r.Update(ctx, "d1", func(d *document.Document) error {
		d.Title = "half written"
		return denied
	})
	require.ErrorIs(t, err, denied)

	_, err = r.Delete(ctx, "d1", func(*document.Document) error { return denied })
	require.ErrorIs(t, err, denied)

	got, err := r.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "title d1", got.Title)
}

func TestMemoryRepoConcurrentUpdatesMerge(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.NoError(t, r.Create(ctx, sampleDoc("d1", "alice", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, "d1", func(d *document.Document) error {
				d.AddSharedPrincipal(fmt.Sprintf("user-%d", i))
				return nil
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got.SharedWith, 50)
	require.Equal(t, int64(51), got.Revision)
}

func TestMemoryRepoListRespectsAccess(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	own := sampleDoc("own", "alice", base)
	shared := sampleDoc("shared", "bob", base.Add(time.Hour))
	shared.SharedWith = []string{"alice"}
	other := sampleDoc("other", "bob", base.Add(2*time.Hour))
	for _, d := range []*document.Document{own, shared, other} {
		require.NoError(t, r.Create(ctx, d))
	}

	list, err := r.List(ctx, "alice", document.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "shared", list[0].ID, "newest first")
	require.Equal(t, "own", list[1].ID)

	// a filter that matches the unshared document still does not reveal it
	list, err = r.List(ctx, "alice", document.Filter{SearchTerm: "other"})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = r.List(ctx, "mallory", document.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMemoryRepoStorageKeys(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := sampleDoc("d1", "alice", time.Now())
	d.ReplaceContent(document.ContentState{StorageKey: "key-d1-v2"}, time.Now())
	require.NoError(t, r.Create(ctx, d))

	keys, err := r.StorageKeys(ctx)
	require.NoError(t, err)
	require.Contains(t, keys, "key-d1")
	require.Contains(t, keys, "key-d1-v2")
}

func TestListQueryAlwaysScopesToPrincipal(t *testing.T) {
	cat := document.CategoryLegal
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := listQuery("alice", document.Filter{SearchTerm: "a.b", Category: &cat, Tags: []string{"x"}, StartDate: &start})

	and, ok := q["$and"].(bson.A)
	require.True(t, ok)
	require.Len(t, and, 5)
	scope := and[0].(bson.M)["$or"].(bson.A)
	require.Equal(t, bson.M{"owner": "alice"}, scope[0])
	require.Equal(t, bson.M{"sharedWith": "alice"}, scope[1])
}
