package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"
)

const testPluginID = "tweetScheduler"

func newTestStore(t *testing.T) (*Store, storage.BlobStore) {
	t.Helper()
	blobs := storage.NewMemory()
	st, err := NewStore(blobs, testPluginID, logx.Nop())
	require.NoError(t, err)
	return st, blobs
}

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBucketKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{name: "same minute", a: "2024-01-15T09:30:00", b: "2024-01-15T09:30:59", same: true},
		{name: "next minute", a: "2024-01-15T09:30:59", b: "2024-01-15T09:31:00"},
		{name: "same hm other day", a: "2024-01-15T09:30:00", b: "2024-01-16T09:30:00"},
		{name: "same minute other hour", a: "2024-01-15T09:30:00", b: "2024-01-15T10:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := BucketKey(at(tt.a)), BucketKey(at(tt.b))
			if tt.same {
				assert.Equal(t, ka, kb)
			} else {
				assert.NotEqual(t, ka, kb)
			}
		})
	}
	assert.Equal(t, "20240115-0930", BucketKey(at("2024-01-15T09:30:05")))
}

func TestParseBucketKey(t *testing.T) {
	t.Parallel()
	got, err := ParseBucketKey("20240115-0930", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-01-15T09:30:00"), got)

	_, err = ParseBucketKey("2024-01-15", time.UTC)
	assert.Error(t, err)
}

func TestCreateThenGet(t *testing.T) {
	st, blobs := newTestStore(t)
	ctx := context.Background()

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, doc, "absent record must read as empty document")

	id, err := st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "hello")
	require.NoError(t, err)
	assert.Equal(t, ReservationID(1), id)

	doc, err = st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Document{"20240115-0930": {1: "hello"}}, doc)

	raw, ok, err := blobs.Get(ctx, testPluginID, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"20240115-0930":{"1":"hello"}}`, string(raw))
}

func TestCreateIDsAreNeverReused(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")

	id1, err := st.Create(ctx, "u1", when, "a")
	require.NoError(t, err)
	id2, err := st.Create(ctx, "u1", when.Add(20*time.Second), "b")
	require.NoError(t, err)
	assert.Equal(t, ReservationID(1), id1)
	assert.Equal(t, ReservationID(2), id2)

	removed, err := st.Delete(ctx, "u1", when, id1)
	require.NoError(t, err)
	require.True(t, removed)

	id3, err := st.Create(ctx, "u1", when, "c")
	require.NoError(t, err)
	assert.Equal(t, ReservationID(3), id3)

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Bucket{2: "b", 3: "c"}, doc["20240115-0930"])
}

func TestCreateKeepsOtherBuckets(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "a")
	require.NoError(t, err)
	id, err := st.Create(ctx, "u1", at("2024-01-15T09:31:00"), "b")
	require.NoError(t, err)
	assert.Equal(t, ReservationID(1), id, "ids are per bucket")

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc, 2)
}

func TestCreateValidates(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, err := st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = st.Create(ctx, " ", at("2024-01-15T09:30:00"), "x")
	assert.ErrorIs(t, err, ErrEmptyAccount)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	st, blobs := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")

	removed, err := st.Delete(ctx, "u1", when, 1)
	require.NoError(t, err)
	assert.False(t, removed)
	_, ok, err := blobs.Get(ctx, testPluginID, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "no-op delete must not write")

	_, err = st.Create(ctx, "u1", when, "hello")
	require.NoError(t, err)
	before, err := st.Get(ctx, "u1")
	require.NoError(t, err)

	removed, err = st.Delete(ctx, "u1", when, 7)
	require.NoError(t, err)
	assert.False(t, removed)
	after, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteTwiceIsIdempotent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")
	_, err := st.Create(ctx, "u1", when, "a")
	require.NoError(t, err)
	_, err = st.Create(ctx, "u1", when, "b")
	require.NoError(t, err)

	removed, err := st.Delete(ctx, "u1", when, 1)
	require.NoError(t, err)
	require.True(t, removed)
	first, err := st.Get(ctx, "u1")
	require.NoError(t, err)

	removed, err = st.Delete(ctx, "u1", when, 1)
	require.NoError(t, err)
	assert.False(t, removed)
	second, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeleteLastEntryPrunesBucket(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")
	_, err := st.Create(ctx, "u1", when, "a")
	require.NoError(t, err)

	removed, err := st.Delete(ctx, "u1", when, 1)
	require.NoError(t, err)
	require.True(t, removed)

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	_, present := doc["20240115-0930"]
	assert.False(t, present, "bucket must be absent, not present-but-empty")
}

func TestDeleteBucket(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")
	for _, m := range []string{"a", "b", "c"} {
		_, err := st.Create(ctx, "u1", when, m)
		require.NoError(t, err)
	}
	_, err := st.Create(ctx, "u1", when.Add(time.Minute), "keep")
	require.NoError(t, err)

	removed, err := st.DeleteBucket(ctx, "u1", when)
	require.NoError(t, err)
	assert.True(t, removed)

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	_, present := doc["20240115-0930"]
	assert.False(t, present)
	assert.Equal(t, Bucket{1: "keep"}, doc["20240115-0931"])

	removed, err = st.DeleteBucket(ctx, "u1", when)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAccountsAreIsolated(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")
	_, err := st.Create(ctx, "u1", when, "a")
	require.NoError(t, err)
	id, err := st.Create(ctx, "u2", when, "b")
	require.NoError(t, err)
	assert.Equal(t, ReservationID(1), id)

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Document{"20240115-0930": {1: "a"}}, doc)
}

func TestSetReplacesDocument(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, err := st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "a")
	require.NoError(t, err)

	require.NoError(t, st.Set(ctx, "u1", Document{"20240201-0800": {5: "x"}, "20240201-0801": {}}))
	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Document{"20240201-0800": {5: "x"}}, doc, "set replaces and prunes empty buckets")
}

func TestListOrdering(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_, _ = st.Create(ctx, "u1", at("2024-01-15T10:00:00"), "late")
	_, _ = st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "early-1")
	_, _ = st.Create(ctx, "u1", at("2024-01-15T09:30:00"), "early-2")

	list, err := st.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, Reservation{Bucket: "20240115-0930", ID: 1, Message: "early-1"}, list[0])
	assert.Equal(t, Reservation{Bucket: "20240115-0930", ID: 2, Message: "early-2"}, list[1])
	assert.Equal(t, "20240115-1000", list[2].Bucket)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan ReservationID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := st.Create(ctx, "u1", when, fmt.Sprintf("m%d", i))
			if err == nil {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[ReservationID]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	doc, err := st.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc["20240115-0930"], n, "no reservation may be lost")
}

type failingBlobs struct {
	storage.BlobStore
	getErr, putErr error
}

func (f failingBlobs) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.BlobStore.Get(ctx, ns, key)
}

func (f failingBlobs) Put(ctx context.Context, ns, key string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.BlobStore.Put(ctx, ns, key, data)
}

func TestStorePropagatesBlobErrors(t *testing.T) {
	boom := errors.New("disk gone")
	ctx := context.Background()
	when := at("2024-01-15T09:30:00")

	st, err := NewStore(failingBlobs{BlobStore: storage.NewMemory(), getErr: boom}, testPluginID, logx.Nop())
	require.NoError(t, err)
	_, err = st.Get(ctx, "u1")
	assert.ErrorIs(t, err, boom)

	st, err = NewStore(failingBlobs{BlobStore: storage.NewMemory(), putErr: boom}, testPluginID, logx.Nop())
	require.NoError(t, err)
	_, err = st.Create(ctx, "u1", when, "a")
	assert.ErrorIs(t, err, boom)
}

func TestCorruptDocumentIsAnError(t *testing.T) {
	blobs := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, testPluginID, "u1", []byte("{not json")))
	st, err := NewStore(blobs, testPluginID, logx.Nop())
	require.NoError(t, err)
	_, err = st.Get(ctx, "u1")
	assert.Error(t, err)
}

func TestNewStoreValidates(t *testing.T) {
	_, err := NewStore(nil, testPluginID, logx.Nop())
	assert.Error(t, err)
	_, err = NewStore(storage.NewMemory(), "  ", logx.Nop())
	assert.Error(t, err)
}
