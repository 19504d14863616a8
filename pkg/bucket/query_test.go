package bucket

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/s3lite/s3lite/pkg/pragma"
	"github.com/s3lite/s3lite/pkg/sqlpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBucket(t *testing.T) *sqlpool.Pool {
	t.Helper()
	dir := t.TempDir()
	pool, err := sqlpool.Open(context.Background(), sqlpool.Config{
		Bucket:  "test",
		Path:    filepath.Join(dir, "test.sqlite3"),
		Profile: pragma.Default(),
		Readers: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, pool.Write(context.Background(), func(conn *sql.Conn) error {
		return CreateSchema(context.Background(), conn)
	}))
	return pool
}

func TestPutAndGetObject(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()
	md5 := HexMD5([]byte("hello"))

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "a/b.txt", []byte("hello"), 5, map[string]string{"x": "y"}, "2026-01-01T00:00:00Z", &md5)
	}))

	var obj *Object
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		obj, err = GetObject(ctx, conn, "a/b.txt")
		return err
	}))

	assert.Equal(t, []byte("hello"), obj.Value)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "y", obj.Metadata["x"])
	assert.Equal(t, md5, *obj.MD5)
}

func TestGetObjectNotFound(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	err := pool.Read(ctx, func(conn *sql.Conn) error {
		_, err := GetObject(ctx, conn, "missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutObjectUpsertOverwritesValue(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	put := func(value string) error {
		return pool.Write(ctx, func(conn *sql.Conn) error {
			return PutObject(ctx, conn, "k", []byte(value), int64(len(value)), nil, "2026-01-01T00:00:00Z", nil)
		})
	}
	require.NoError(t, put("v1"))
	require.NoError(t, put("v2"))

	var obj *Object
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		obj, err = GetObject(ctx, conn, "k")
		return err
	}))
	assert.Equal(t, []byte("v2"), obj.Value)
}

func TestDeleteObjectDistinguishesFoundFromMissing(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "k", []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
	}))

	var rows int64
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		var err error
		rows, err = DeleteObject(ctx, conn, "k")
		return err
	}))
	assert.Equal(t, int64(1), rows)

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		var err error
		rows, err = DeleteObject(ctx, conn, "k")
		return err
	}))
	assert.Equal(t, int64(0), rows)
}

func TestDeleteCascadesToMetadata(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "k", []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
	}))
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		_, err := DeleteObject(ctx, conn, "k")
		return err
	}))

	err := pool.Read(ctx, func(conn *sql.Conn) error {
		_, err := GetMetadata(ctx, conn, "k")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListObjectsFiltersByPrefixAndStartAfter(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	keys := []string{"a/1", "a/2", "a/3", "b/1"}
	for _, k := range keys {
		k := k
		require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
			return PutObject(ctx, conn, k, []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
		}))
	}

	prefix := "a/"
	var entries []ListEntry
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		entries, err = ListObjects(ctx, conn, &prefix, nil)
		return err
	}))
	require.Len(t, entries, 3)
	assert.Equal(t, "a/1", entries[0].Key)

	startAfter := "a/1"
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		entries, err = ListObjects(ctx, conn, &prefix, &startAfter)
		return err
	}))
	require.Len(t, entries, 2)
	assert.Equal(t, "a/2", entries[0].Key)
}

func TestListObjectsPrefixEscapesLikeMetacharacters(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "100%_done", []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
	}))
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "100Xdone", []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
	}))

	prefix := "100%_"
	var entries []ListEntry
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		entries, err = ListObjects(ctx, conn, &prefix, nil)
		return err
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, "100%_done", entries[0].Key)
}

func TestDeleteObjectsReturnsOnlyExistingKeys(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutObject(ctx, conn, "k1", []byte("v"), 1, nil, "2026-01-01T00:00:00Z", nil)
	}))

	var deleted []string
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		var err error
		deleted, err = DeleteObjects(ctx, conn, []string{"k1", "k2"})
		return err
	}))
	assert.Equal(t, []string{"k1"}, deleted)
}

func TestMultipartUploadLifecycle(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()
	accessKey := "AKIAEXAMPLE"

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return CreateMultipartUpload(ctx, conn, "upload-1", "bkt", "big.bin", &accessKey, "2026-01-01T00:00:00Z")
	}))

	md5a := HexMD5([]byte("part-a"))
	md5b := HexMD5([]byte("part-b"))
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutMultipartPart(ctx, conn, "upload-1", 2, []byte("part-b"), 6, &md5b, "2026-01-01T00:00:01Z")
	}))
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return PutMultipartPart(ctx, conn, "upload-1", 1, []byte("part-a"), 6, &md5a, "2026-01-01T00:00:02Z")
	}))

	var ok bool
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		ok, err = VerifyUploadID(ctx, conn, "upload-1", "bkt", "big.bin", &accessKey)
		return err
	}))
	assert.True(t, ok)

	wrongKey := "other"
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		ok, err = VerifyUploadID(ctx, conn, "upload-1", "bkt", "big.bin", &wrongKey)
		return err
	}))
	assert.False(t, ok)

	var parts []Part
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		parts, err = GetMultipartValues(ctx, conn, "upload-1")
		return err
	}))
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].PartNumber)
	assert.Equal(t, []byte("part-a"), parts[0].Value)
	assert.Equal(t, 2, parts[1].PartNumber)

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return DeleteMultipartUpload(ctx, conn, "upload-1")
	}))

	var metas []PartMeta
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		metas, err = ListMultipartMetadata(ctx, conn, "upload-1")
		return err
	}))
	assert.Empty(t, metas)
}

func TestDeleteExpiredMultipart(t *testing.T) {
	pool := openTestBucket(t)
	ctx := context.Background()

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return CreateMultipartUpload(ctx, conn, "old", "bkt", "k", nil, "2020-01-01T00:00:00Z")
	}))
	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return CreateMultipartUpload(ctx, conn, "new", "bkt", "k2", nil, "2030-01-01T00:00:00Z")
	}))

	require.NoError(t, pool.Write(ctx, func(conn *sql.Conn) error {
		return DeleteExpiredMultipart(ctx, conn, "2026-01-01T00:00:00Z")
	}))

	var ok bool
	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		ok, err = VerifyUploadID(ctx, conn, "old", "bkt", "k", nil)
		return err
	}))
	assert.False(t, ok)

	require.NoError(t, pool.Read(ctx, func(conn *sql.Conn) error {
		var err error
		ok, err = VerifyUploadID(ctx, conn, "new", "bkt", "k2", nil)
		return err
	}))
	assert.True(t, ok)
}
