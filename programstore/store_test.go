package programstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.MemKeyValue) {
	t.Helper()
	bucket := testutil.NewMemKeyValue(DefaultBucket, 10)
	store := New(bucket, nil)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return store, bucket
}

func sampleDoc(id string) *Document {
	return &Document{
		ID:          id,
		Name:        "Sample " + id,
		Description: "speaks hello",
		Program:     json.RawMessage(testutil.SampleDocument),
		CreatedBy:   "tester",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("p1")
	require.NoError(t, store.Create(ctx, doc))
	assert.Equal(t, int64(1), doc.Version)
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.Description, got.Description)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))

	prog, err := got.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, prog.Len())
}

func TestStore_CreateDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleDoc("p1")))

	err := store.Create(ctx, sampleDoc("p1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExists)
	assert.True(t, cerrors.IsInvalid(err))
}

func TestStore_CreateRejectsInvalid(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.True(t, cerrors.IsInvalid(store.Create(ctx, nil)))

	doc := sampleDoc("p1")
	doc.Program = json.RawMessage(`{"version": 1, "blocks": [{"id": "x"}]}`)
	err := store.Create(ctx, doc)
	require.Error(t, err)
	assert.True(t, cerrors.IsInvalid(err))

	_, err = store.Get(ctx, "p1")
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound, "nothing was written")
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound)
	assert.True(t, cerrors.IsInvalid(err))

	_, err = store.Get(context.Background(), "")
	assert.True(t, cerrors.IsInvalid(err))
}

func TestStore_Update(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("p1")
	require.NoError(t, store.Create(ctx, doc))
	created := doc.CreatedAt

	doc.Name = "Renamed"
	doc.CreatedAt = time.Time{}
	doc.CreatedBy = "someone else"
	require.NoError(t, store.Update(ctx, doc))

	assert.Equal(t, int64(2), doc.Version)
	assert.True(t, created.Equal(doc.CreatedAt), "creation time is preserved")
	assert.Equal(t, "tester", doc.CreatedBy)
	assert.True(t, doc.UpdatedAt.After(created))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_OptimisticConcurrency(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleDoc("p1")))

	alice, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	bob, err := store.Get(ctx, "p1")
	require.NoError(t, err)

	alice.Name = "Alice's"
	require.NoError(t, store.Update(ctx, alice))

	bob.Name = "Bob's"
	err = store.Update(ctx, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, cerrors.IsInvalid(err))
	assert.Equal(t, int64(1), bob.Version, "failed update leaves the document untouched")

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Alice's", got.Name)
}

func TestStore_UpdateMissing(t *testing.T) {
	store, _ := newTestStore(t)

	doc := sampleDoc("ghost")
	doc.Version = 1
	err := store.Update(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound)
}

func TestStore_UpdateTransportFailure(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("p1")
	require.NoError(t, store.Create(ctx, doc))

	// one failed write is retried
	bucket.FailNext = errors.New("nats: connection closed")
	require.NoError(t, store.Update(ctx, doc))
	assert.Equal(t, int64(2), doc.Version)
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleDoc("p1")))
	require.NoError(t, store.Delete(ctx, "p1"))

	_, err := store.Get(ctx, "p1")
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound)

	err = store.Delete(ctx, "p1")
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound)

	// the ID can be reused after deletion
	require.NoError(t, store.Create(ctx, sampleDoc("p1")))
}

func TestStore_List(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	docs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Create(ctx, sampleDoc(id)))
	}
	require.NoError(t, store.Delete(ctx, "b"))

	docs, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
}

func TestStore_History(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("p1")
	require.NoError(t, store.Create(ctx, doc))
	doc.Name = "v2"
	require.NoError(t, store.Update(ctx, doc))
	doc.Name = "v3"
	require.NoError(t, store.Update(ctx, doc))
	require.NoError(t, store.Delete(ctx, "p1"))

	hist, err := store.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{hist[0].Version, hist[1].Version, hist[2].Version})
	assert.Equal(t, "v3", hist[2].Name)

	_, err = store.History(ctx, "never")
	assert.ErrorIs(t, err, cerrors.ErrKeyNotFound)
}

func TestStore_Watch(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Create(ctx, sampleDoc("before")))

	changes, err := store.Watch(ctx)
	require.NoError(t, err)

	next := func() Change {
		t.Helper()
		select {
		case c, ok := <-changes:
			require.True(t, ok, "change feed closed early")
			return c
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change")
			return Change{}
		}
	}

	doc := sampleDoc("p1")
	require.NoError(t, store.Create(ctx, doc))
	doc.Name = "renamed"
	require.NoError(t, store.Update(ctx, doc))
	_, err = bucket.Put(ctx, "garbage", []byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "p1"))

	c := next()
	assert.Equal(t, "p1", c.ID)
	require.NotNil(t, c.Document)
	assert.Equal(t, int64(1), c.Document.Version)

	c = next()
	require.NotNil(t, c.Document)
	assert.Equal(t, "renamed", c.Document.Name)
	assert.Equal(t, int64(2), c.Document.Version)

	c = next()
	assert.Equal(t, "p1", c.ID)
	assert.True(t, c.Deleted)
	assert.Nil(t, c.Document)
	assert.NotZero(t, c.Revision)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestNewStore_NilClient(t *testing.T) {
	_, err := NewStore(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, cerrors.IsInvalid(err))
}
