package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/evault/evault/internal/document"
	"github.com/evault/evault/internal/document/repository"
	"github.com/evault/evault/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) (*repository.MemoryRepo, *storage.FileStore, time.Time) {
	t.Helper()
	ctx := context.Background()
	blobs, err := storage.NewFileStore(afero.NewMemMapFs(), "/blobs")
	require.NoError(t, err)
	repo := repository.NewMemoryRepo()

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	current := storage.GenerateKey(old, "current.pdf")
	prior := storage.GenerateKey(old, "prior.pdf")
	orphan := storage.GenerateKey(old, "orphan.pdf")
	fresh := storage.GenerateKey(now, "inflight.pdf")
	for _, k := range []string{current, prior, orphan, fresh} {
		require.NoError(t, blobs.Put(ctx, k, strings.NewReader("bytes"), 5, "application/pdf"))
	}

	d := document.New("d1", "alice", document.ContentState{Fingerprint: "f1", Anchor: "a1", StorageKey: prior}, old)
	d.ReplaceContent(document.ContentState{Fingerprint: "f2", Anchor: "a2", StorageKey: current}, old)
	require.NoError(t, repo.Create(ctx, d))
	return repo, blobs, now
}

func TestReconcileListsOnlyOldUnreferencedBlobs(t *testing.T) {
	repo, blobs, now := seed(t)
	res, err := reconcile(context.Background(), repo, blobs, options{MinAge: time.Hour, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	require.Len(t, res.Orphans, 1)
	assert.True(t, strings.HasSuffix(res.Orphans[0], "-orphan.pdf"))
	assert.Zero(t, res.Deleted)

	keys, _ := blobs.List(context.Background())
	assert.Len(t, keys, 4)
}

func TestReconcileDelete(t *testing.T) {
	repo, blobs, now := seed(t)
	res, err := reconcile(context.Background(), repo, blobs, options{Delete: true, MinAge: time.Hour, Now: now})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	keys, _ := blobs.List(context.Background())
	assert.Len(t, keys, 3)

	var out bytes.Buffer
	report(&out, res, true)
	assert.Contains(t, out.String(), "scanned 4 blobs, deleted 1 orphaned")
}

func TestKeyTime(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	got, ok := keyTime(storage.GenerateKey(at, "a.txt"))
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	_, ok = keyTime("legacy.pdf")
	assert.False(t, ok)
}
