package table

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TotoCodeFR/DaaD/channel"
	"github.com/TotoCodeFR/DaaD/channel/memchannel"
	"github.com/TotoCodeFR/DaaD/errors"
	"github.com/TotoCodeFR/DaaD/testutil"
)

func testDeps() Dependencies {
	return Dependencies{Logger: testutil.Logger()}
}

func testSchema(t *testing.T) Schema {
	t.Helper()
	s, err := NewSchema([]string{"id", "name", "note"}, "id")
	require.NoError(t, err)
	return s
}

func boundTable(t *testing.T, cfg Config) (*Table, *memchannel.Store) {
	t.Helper()
	store := memchannel.New()
	tbl, err := New("users", testSchema(t), cfg, testDeps())
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(store))
	return tbl, store
}

func TestNewSchema(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		pk      string
		wantErr bool
	}{
		{name: "valid", columns: []string{"id", "name"}, pk: "id"},
		{name: "no columns", columns: nil, pk: "id", wantErr: true},
		{name: "empty pk", columns: []string{"id"}, pk: "", wantErr: true},
		{name: "pk not a column", columns: []string{"name"}, pk: "id", wantErr: true},
		{name: "duplicate column", columns: []string{"id", "id"}, pk: "id", wantErr: true},
		{name: "empty column name", columns: []string{"id", ""}, pk: "id", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.columns, tt.pk)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOperationsBeforeBind(t *testing.T) {
	tbl, err := New("users", testSchema(t), DefaultConfig(), testDeps())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = tbl.Insert(ctx, Record{"id": "u1"})
	assert.ErrorIs(t, err, errors.ErrTableNotReady)

	_, err = tbl.Find(ctx, "u1")
	assert.ErrorIs(t, err, errors.ErrTableNotReady)

	_, err = tbl.Query(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrTableNotReady)

	_, err = tbl.Update(ctx, Record{"id": "u1"})
	assert.ErrorIs(t, err, errors.ErrTableNotReady)

	_, err = tbl.Delete(ctx, "u1")
	assert.ErrorIs(t, err, errors.ErrTableNotReady)
}

func TestBindTwice(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	err := tbl.Bind(memchannel.New())
	assert.ErrorIs(t, err, errors.ErrAlreadyBound)
}

func TestInsertValidation(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "missing pk", rec: Record{"name": "alice"}},
		{name: "empty pk", rec: Record{"id": "", "name": "alice"}},
		{name: "non-string pk", rec: Record{"id": 42, "name": "alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.Insert(ctx, tt.rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMissingPrimaryKey)
		})
	}
}

func TestInsertFindRoundTripSingleChunk(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	rec := Record{"id": "u1", "name": "alice", "note": "short"}
	head, err := tbl.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "u1 [1/1]", head.Label)

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found["name"])
	assert.Equal(t, "short", found["note"])
}

func TestInsertFindRoundTripMultiChunk(t *testing.T) {
	tbl, store := boundTable(t, DefaultConfig())
	ctx := context.Background()

	note := strings.Repeat("n", 9000)
	rec := Record{"id": "u1", "name": "A", "note": note}
	head, err := tbl.Insert(ctx, rec)
	require.NoError(t, err)

	// 9000 chars plus JSON framing at a 3800 bound: three chunks.
	assert.Equal(t, "u1 [1/3]", head.Label)
	assert.Equal(t, 3, store.Len())

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, note, found["note"])
}

func TestFindNotFound(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	found, err := tbl.Find(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = tbl.Insert(ctx, Record{"id": "u1", "name": "alice"})
	require.NoError(t, err)

	found, err = tbl.Find(ctx, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindDoesNotConsultCache(t *testing.T) {
	tbl, store := boundTable(t, DefaultConfig())
	ctx := context.Background()

	_, err := tbl.Insert(ctx, Record{"id": "u1", "name": "alice"})
	require.NoError(t, err)

	// Wipe the channel behind the cache's back. The cache still holds u1
	// but find must report not found.
	msgs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	for _, m := range msgs {
		require.NoError(t, store.Delete(ctx, m.ID))
	}

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindSkipsBrokenChain(t *testing.T) {
	tbl, store := boundTable(t, Config{ChunkSize: 30})
	ctx := context.Background()

	head, err := tbl.Insert(ctx, Record{"id": "u1", "note": strings.Repeat("x", 200)})
	require.NoError(t, err)
	require.NotEmpty(t, head.Next)

	// Break the chain below the head.
	require.NoError(t, store.Delete(ctx, head.Next))

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err, "a broken chain is not found, not an error")
	assert.Nil(t, found)
}

func TestQuery(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	for _, rec := range []Record{
		{"id": "u1", "name": "alice", "note": "admin"},
		{"id": "u2", "name": "bob", "note": "admin"},
		{"id": "u3", "name": "carol", "note": "guest"},
	} {
		_, err := tbl.Insert(ctx, rec)
		require.NoError(t, err)
	}

	admins, err := tbl.Query(ctx, func(r Record) bool {
		return r["note"] == "admin"
	})
	require.NoError(t, err)
	require.Len(t, admins, 2)
	names := []string{admins[0]["name"].(string), admins[1]["name"].(string)}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)

	all, err := tbl.Query(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := tbl.Query(ctx, func(r Record) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuerySkipsBrokenChains(t *testing.T) {
	tbl, store := boundTable(t, Config{ChunkSize: 30})
	ctx := context.Background()

	_, err := tbl.Insert(ctx, Record{"id": "ok", "note": "fine"})
	require.NoError(t, err)

	broken, err := tbl.Insert(ctx, Record{"id": "bad", "note": strings.Repeat("y", 200)})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, broken.Next))

	all, err := tbl.Query(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ok", all[0]["id"])
}

func TestUpdate(t *testing.T) {
	tbl, store := boundTable(t, DefaultConfig())
	ctx := context.Background()

	old, err := tbl.Insert(ctx, Record{"id": "u1", "name": "alice", "note": "v1"})
	require.NoError(t, err)

	_, err = tbl.Update(ctx, Record{"id": "u1", "name": "alice", "note": "v2"})
	require.NoError(t, err)

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "v2", found["note"])

	// The previous chain's messages are gone from the substrate.
	assert.False(t, store.Has(old.ID))
}

func TestUpdateAbsentIdentityInserts(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	_, err := tbl.Update(ctx, Record{"id": "u1", "name": "fresh"})
	require.NoError(t, err)

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "fresh", found["name"])
}

func TestDeleteIdempotence(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	// Never-existing identity is a no-op.
	res, err := tbl.Delete(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, res.Found)

	_, err = tbl.Insert(ctx, testutil.UserRecord("u1", "alice"))
	require.NoError(t, err)

	res, err = tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Len(t, res.Deleted, 1)
	assert.False(t, res.Fallback)

	// Second delete is a no-op, not an error.
	res, err = tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestDeleteFallback(t *testing.T) {
	tbl, store := boundTable(t, Config{ChunkSize: 30})
	ctx := context.Background()

	_, err := tbl.Insert(ctx, testutil.LargeRecord("u1", 30, 4))
	require.NoError(t, err)
	chunkCount := store.Len()
	require.Greater(t, chunkCount, 1)

	store.RejectBulkDeletes(true)

	res, err := tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Deleted, chunkCount)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, chunkCount, store.DeleteCalls())
}

func TestDeleteFallbackPartialFailure(t *testing.T) {
	tbl, store := boundTable(t, Config{ChunkSize: 30})
	ctx := context.Background()

	head, err := tbl.Insert(ctx, Record{"id": "u1", "note": strings.Repeat("z", 100)})
	require.NoError(t, err)

	store.RejectBulkDeletes(true)
	store.FailDelete(head.Next, channel.ErrNotFound)

	res, err := tbl.Delete(ctx, "u1")
	require.NoError(t, err, "fallback failures are best-effort, not fatal")
	assert.True(t, res.Found)
	assert.True(t, res.Fallback)
	assert.Equal(t, []string{head.Next}, res.Failed)
	assert.NotContains(t, res.Deleted, head.Next)
}

func TestDeleteRemovesBrokenChain(t *testing.T) {
	tbl, store := boundTable(t, Config{ChunkSize: 30})
	ctx := context.Background()

	head, err := tbl.Insert(ctx, Record{"id": "u1", "note": strings.Repeat("w", 200)})
	require.NoError(t, err)
	chunkCount := store.Len()
	require.Greater(t, chunkCount, 2)

	// Break the chain two links below the head. Find now reports the
	// record as absent, but the head and the reachable chunks are still
	// occupying the channel.
	second, err := store.Get(ctx, head.Next)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, second.Next))

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, found)

	res, err := tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Found, "remnants of a broken chain are deletable")
	assert.Equal(t, []string{head.ID, second.ID}, res.Deleted)
	assert.False(t, store.Has(head.ID))
	assert.False(t, store.Has(second.ID))

	// The head is no longer discoverable, so the identity is truly gone.
	res, err = tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestDeleteEvictsCache(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	_, err := tbl.Insert(ctx, Record{"id": "u1", "name": "alice"})
	require.NoError(t, err)
	assert.Contains(t, tbl.cache.Keys(), "u1")

	_, err = tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, tbl.cache.Keys(), "u1")
}

func TestCachePopulatedOnInsertOnly(t *testing.T) {
	tbl, _ := boundTable(t, DefaultConfig())
	ctx := context.Background()

	_, err := tbl.Insert(ctx, Record{"id": "u1", "name": "alice"})
	require.NoError(t, err)

	entry, ok := tbl.cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Record["name"])
	assert.Len(t, entry.IDs, 1)

	// Reads never touch or refresh the cache contents.
	_, err = tbl.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.cache.Size())
}

func TestRetrievalWindowLimit(t *testing.T) {
	tbl, _ := boundTable(t, Config{RetrievalWindow: 3})
	ctx := context.Background()

	for _, rec := range testutil.Records("u", 5) {
		_, err := tbl.Insert(ctx, rec)
		require.NoError(t, err)
	}

	// u-0 and u-1 have fallen out of the 3-message window.
	found, err := tbl.Find(ctx, "u-0")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = tbl.Find(ctx, "u-4")
	require.NoError(t, err)
	assert.NotNil(t, found)

	all, err := tbl.Query(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFullScenario(t *testing.T) {
	tbl, store := boundTable(t, DefaultConfig())
	ctx := context.Background()

	note := strings.Repeat("s", 9000)
	_, err := tbl.Insert(ctx, Record{"id": "u1", "name": "A", "note": note})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len(), "9000-char note at a 3800 bound needs 3 chunks")

	found, err := tbl.Find(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "A", found["name"])
	assert.Equal(t, note, found["note"])

	res, err := tbl.Delete(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Len(t, res.Deleted, 3)
	assert.Equal(t, 0, store.Len())
	_, cached := tbl.cache.Get("u1")
	assert.False(t, cached)
}
