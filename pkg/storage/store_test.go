package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]ChunkStore {
	t.Helper()

	disk, err := NewInMemoryDiskStore()
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })

	return map[string]ChunkStore{
		"memory": NewMemoryStore(),
		"badger": disk,
	}
}

func TestChunkStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "s1", 1, []byte("world")))
			require.NoError(t, store.Put(ctx, "s1", 0, []byte("hello ")))
			require.NoError(t, store.Put(ctx, "s2", 0, []byte("other")))

			data, err := store.Get(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello "), data)

			records, err := store.List(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, []ChunkRecord{
				{SessionID: "s1", Index: 0, Size: 6},
				{SessionID: "s1", Index: 1, Size: 5},
			}, records)

			_, err = store.Get(ctx, "s1", 7)
			assert.ErrorIs(t, err, ErrChunkNotFound)
		})
	}
}

func TestChunkStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "s1", 0, []byte("first")))
			require.NoError(t, store.Put(ctx, "s1", 0, []byte("second")))

			data, err := store.Get(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), data)

			records, err := store.List(ctx, "s1")
			require.NoError(t, err)
			assert.Len(t, records, 1)
		})
	}
}

func TestChunkStoreDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, store.Put(ctx, "gone", i, []byte{byte(i)}))
			}
			require.NoError(t, store.Put(ctx, "kept", 0, []byte("x")))

			require.NoError(t, store.Delete(ctx, "gone", 1))
			require.NoError(t, store.Delete(ctx, "gone", 1), "deleting twice is fine")
			_, err := store.Get(ctx, "gone", 1)
			assert.ErrorIs(t, err, ErrChunkNotFound)

			require.NoError(t, store.DeleteNamespace(ctx, "gone"))
			require.NoError(t, store.DeleteNamespace(ctx, "gone"))
			records, err := store.List(ctx, "gone")
			require.NoError(t, err)
			assert.Empty(t, records)

			data, err := store.Get(ctx, "kept", 0)
			require.NoError(t, err)
			assert.Equal(t, []byte("x"), data)
		})
	}
}

func TestChunkStoreConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Put(ctx, "par", i, []byte(fmt.Sprintf("chunk-%d", i))))
				}(i)
			}
			wg.Wait()

			records, err := store.List(ctx, "par")
			require.NoError(t, err)
			require.Len(t, records, 32)
			for i, r := range records {
				assert.Equal(t, i, r.Index)
			}
		})
	}
}

func TestChunkStoreDeleteNamespaceDoesNotBlockOtherSessions(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "kept", 0, []byte("x")))
			stop := make(chan struct{})
			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					session := fmt.Sprintf("other%d", w)
					for i := 0; ; i++ {
						select {
						case <-stop:
							return
						default:
						}
						if !assert.NoError(t, store.Put(ctx, session, i%50, []byte("payload"))) {
							return
						}
					}
				}(w)
			}

			for i := 0; i < 200; i++ {
				require.NoError(t, store.Put(ctx, "done", 0, []byte("x")))
				require.NoError(t, store.DeleteNamespace(ctx, "done"))
			}
			close(stop)
			wg.Wait()

			records, err := store.List(ctx, "done")
			require.NoError(t, err)
			assert.Empty(t, records)
			data, err := store.Get(ctx, "kept", 0)
			require.NoError(t, err)
			assert.Equal(t, []byte("x"), data)
		})
	}
}
