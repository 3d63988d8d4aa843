package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/formfiller/pkg/logger"
)

func TestMemoryStorePutCopiesData(t *testing.T) {
	store := NewMemoryStore(0)
	data := []byte(`{"ok":true}`)

	require.NoError(t, store.Put(context.Background(), "reports/1.json", data, "application/json"))
	data[0] = 'x'

	obj, ok := store.Get("reports/1.json")
	require.True(t, ok)
	require.Equal(t, `{"ok":true}`, string(obj.Data))
	require.Equal(t, "application/json", obj.ContentType)
	require.Equal(t, []string{"reports/1.json"}, store.Keys())
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("1"), "text/plain"))
	require.NoError(t, store.Put(ctx, "b", []byte("2"), "text/plain"))
	require.NoError(t, store.Put(ctx, "a", []byte("3"), "text/plain"))
	require.NoError(t, store.Put(ctx, "c", []byte("4"), "text/plain"))

	require.Equal(t, []string{"b", "c"}, store.Keys())
	_, ok := store.Get("a")
	require.False(t, ok)
}

func TestSanitizeEndpoint(t *testing.T) {
	require.Equal(t, "minio:9000", sanitizeEndpoint("http://minio:9000"))
	require.Equal(t, "acc.r2.cloudflarestorage.com", sanitizeEndpoint(" https://acc.r2.cloudflarestorage.com/bucket "))
	require.Equal(t, "localhost:9000", sanitizeEndpoint("localhost:9000"))
}

func TestNewS3StoreValidates(t *testing.T) {
	_, err := NewS3Store(S3Config{Endpoint: "localhost:9000"}, logger.Discard())
	require.Error(t, err)

	_, err = NewS3Store(S3Config{Bucket: "formfiller"}, logger.Discard())
	require.Error(t, err)

	store, err := NewS3Store(S3Config{Endpoint: "https://localhost:9000", Bucket: "formfiller"}, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, store)
}
