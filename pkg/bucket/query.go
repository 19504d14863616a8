package bucket

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/s3lite/s3lite/pkg/hexutil"
)

// Object is the full row returned by GetObject: payload, size, metadata,
// and identity fields joined from data and metadata.
type Object struct {
	Key          string
	Value        []byte
	Size         int64
	Metadata     map[string]string
	LastModified string
	MD5          *string
}

// ObjectMeta is the metadata-only projection used by HeadObject.
type ObjectMeta struct {
	Size         int64
	Metadata     map[string]string
	LastModified string
	MD5          *string
}

// ListEntry is one row of a ListObjects scan.
type ListEntry struct {
	Key          string
	Size         int64
	LastModified string
	MD5          *string
}

// PartMeta is one row of a multipart part listing, without the payload.
type PartMeta struct {
	PartNumber   int
	Size         int64
	LastModified string
	MD5          *string
}

// Part is a multipart part including its stored bytes.
type Part struct {
	PartMeta
	Value []byte
}

func encodeMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("bucket: encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("bucket: decode metadata: %w", err)
	}
	return m, nil
}

// HexMD5 returns the hex-lowercase MD5 digest of b, matching the ETag /
// md5 column convention used across the schema.
func HexMD5(b []byte) string {
	return hexutil.MD5(b)
}

// PutObject upserts key's payload into data and its metadata into metadata,
// in that order so the metadata row's foreign key is always satisfiable.
func PutObject(ctx context.Context, conn *sql.Conn, key string, value []byte, size int64, metadata map[string]string, lastModified string, md5Hex *string) error {
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO data (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("bucket: put object data: %w", err)
	}

	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO metadata (key, size, metadata, last_modified, md5) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			size = excluded.size,
			metadata = excluded.metadata,
			last_modified = excluded.last_modified,
			md5 = excluded.md5`,
		key, size, meta, lastModified, md5Hex,
	); err != nil {
		return fmt.Errorf("bucket: put object metadata: %w", err)
	}

	return nil
}

// GetObject returns the full object row for key, or ErrNotFound.
func GetObject(ctx context.Context, conn *sql.Conn, key string) (*Object, error) {
	row := conn.QueryRowContext(ctx,
		`SELECT d.key, d.value, m.size, m.metadata, m.last_modified, m.md5
		 FROM metadata m INNER JOIN data d ON d.key = m.key
		 WHERE d.key = ?`,
		key,
	)

	var (
		obj      Object
		value    []byte
		metaJSON sql.NullString
		md5Val   sql.NullString
	)
	if err := row.Scan(&obj.Key, &value, &obj.Size, &metaJSON, &obj.LastModified, &md5Val); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bucket: get object: %w", err)
	}

	obj.Value = value
	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	obj.Metadata = meta
	if md5Val.Valid {
		v := md5Val.String
		obj.MD5 = &v
	}
	return &obj, nil
}

// GetMetadata returns the metadata-only projection of key, or ErrNotFound.
func GetMetadata(ctx context.Context, conn *sql.Conn, key string) (*ObjectMeta, error) {
	row := conn.QueryRowContext(ctx,
		`SELECT size, metadata, last_modified, md5 FROM metadata WHERE key = ?`,
		key,
	)

	var (
		m        ObjectMeta
		metaJSON sql.NullString
		md5Val   sql.NullString
	)
	if err := row.Scan(&m.Size, &metaJSON, &m.LastModified, &md5Val); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bucket: get metadata: %w", err)
	}

	meta, err := decodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	m.Metadata = meta
	if md5Val.Valid {
		v := md5Val.String
		m.MD5 = &v
	}
	return &m, nil
}

// DeleteObject deletes key from data (CASCADE removes its metadata row) and
// returns the number of rows affected: 1 if it existed, 0 otherwise.
func DeleteObject(ctx context.Context, conn *sql.Conn, key string) (int64, error) {
	res, err := conn.ExecContext(ctx, `DELETE FROM data WHERE key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("bucket: delete object: %w", err)
	}
	return res.RowsAffected()
}

// DeleteObjectsLike deletes every key with the given prefix and returns the
// number of rows affected.
func DeleteObjectsLike(ctx context.Context, conn *sql.Conn, prefix string) (int64, error) {
	res, err := conn.ExecContext(ctx, `DELETE FROM data WHERE key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	if err != nil {
		return 0, fmt.Errorf("bucket: delete objects like: %w", err)
	}
	return res.RowsAffected()
}

// DeleteObjects deletes every key in keys and returns the subset that
// actually existed, via RETURNING.
func DeleteObjects(ctx context.Context, conn *sql.Conn, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		args[i] = k
	}

	query := fmt.Sprintf(`DELETE FROM data WHERE key IN (%s) RETURNING key`, strings.Join(placeholders, ","))
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket: delete objects: %w", err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("bucket: delete objects scan: %w", err)
		}
		deleted = append(deleted, k)
	}
	return deleted, rows.Err()
}

// likePrefix escapes SQL LIKE metacharacters in prefix and appends the
// wildcard suffix.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

// ListObjects returns every row from metadata matching the optional prefix
// and start-after filters, ordered by key ascending. It is a full
// point-in-time snapshot; pagination is the caller's responsibility.
func ListObjects(ctx context.Context, conn *sql.Conn, prefix, startAfter *string) ([]ListEntry, error) {
	query := `SELECT key, size, last_modified, md5 FROM metadata WHERE 1=1`
	var args []any

	if prefix != nil && *prefix != "" {
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(*prefix))
	}
	if startAfter != nil && *startAfter != "" {
		query += ` AND key > ?`
		args = append(args, *startAfter)
	}
	query += ` ORDER BY key ASC`

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket: list objects: %w", err)
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		var (
			e      ListEntry
			md5Val sql.NullString
		)
		if err := rows.Scan(&e.Key, &e.Size, &e.LastModified, &md5Val); err != nil {
			return nil, fmt.Errorf("bucket: list objects scan: %w", err)
		}
		if md5Val.Valid {
			v := md5Val.String
			e.MD5 = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateMultipartUpload registers a new in-progress multipart upload.
func CreateMultipartUpload(ctx context.Context, conn *sql.Conn, uploadID, bucket, key string, accessKey *string, lastModified string) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO multipart_upload (upload_id, bucket, key, last_modified, access_key) VALUES (?, ?, ?, ?, ?)`,
		uploadID, bucket, key, lastModified, accessKey,
	)
	if err != nil {
		return fmt.Errorf("bucket: create multipart upload: %w", err)
	}
	return nil
}

// PutMultipartPart upserts one part's bytes for an in-progress upload.
func PutMultipartPart(ctx context.Context, conn *sql.Conn, uploadID string, partNumber int, value []byte, size int64, md5Hex *string, lastModified string) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO multipart_upload_part (upload_id, part_number, last_modified, value, size, md5)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(upload_id, part_number) DO UPDATE SET
			last_modified = excluded.last_modified,
			value = excluded.value,
			size = excluded.size,
			md5 = excluded.md5`,
		uploadID, partNumber, lastModified, value, size, md5Hex,
	)
	if err != nil {
		return fmt.Errorf("bucket: put multipart part: %w", err)
	}
	return nil
}

// VerifyUploadID reports whether uploadID is a live upload for bucket/key
// whose stored access key matches accessKey (nil matches nil).
func VerifyUploadID(ctx context.Context, conn *sql.Conn, uploadID, bucket, key string, accessKey *string) (bool, error) {
	row := conn.QueryRowContext(ctx,
		`SELECT access_key FROM multipart_upload WHERE upload_id = ? AND bucket = ? AND key = ?`,
		uploadID, bucket, key,
	)

	var stored sql.NullString
	if err := row.Scan(&stored); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("bucket: verify upload id: %w", err)
	}

	if !stored.Valid && accessKey == nil {
		return true, nil
	}
	if stored.Valid && accessKey != nil && stored.String == *accessKey {
		return true, nil
	}
	return false, nil
}

// ListMultipartMetadata returns every part's metadata (without payload) for
// uploadID, ordered by part number ascending.
func ListMultipartMetadata(ctx context.Context, conn *sql.Conn, uploadID string) ([]PartMeta, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT part_number, size, last_modified, md5 FROM multipart_upload_part
		 WHERE upload_id = ? ORDER BY part_number ASC`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("bucket: list multipart metadata: %w", err)
	}
	defer rows.Close()

	var parts []PartMeta
	for rows.Next() {
		var (
			p      PartMeta
			md5Val sql.NullString
		)
		if err := rows.Scan(&p.PartNumber, &p.Size, &p.LastModified, &md5Val); err != nil {
			return nil, fmt.Errorf("bucket: list multipart metadata scan: %w", err)
		}
		if md5Val.Valid {
			v := md5Val.String
			p.MD5 = &v
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// GetMultipartValues returns every part including its payload bytes for
// uploadID, ordered by part number ascending, for CompleteMultipartUpload.
func GetMultipartValues(ctx context.Context, conn *sql.Conn, uploadID string) ([]Part, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT part_number, size, last_modified, md5, value FROM multipart_upload_part
		 WHERE upload_id = ? ORDER BY part_number ASC`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("bucket: get multipart values: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var (
			p      Part
			md5Val sql.NullString
		)
		if err := rows.Scan(&p.PartNumber, &p.Size, &p.LastModified, &md5Val, &p.Value); err != nil {
			return nil, fmt.Errorf("bucket: get multipart values scan: %w", err)
		}
		if md5Val.Valid {
			v := md5Val.String
			p.MD5 = &v
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// DeleteMultipartUpload removes uploadID; CASCADE removes its parts.
func DeleteMultipartUpload(ctx context.Context, conn *sql.Conn, uploadID string) error {
	_, err := conn.ExecContext(ctx, `DELETE FROM multipart_upload WHERE upload_id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("bucket: delete multipart upload: %w", err)
	}
	return nil
}

// DeleteExpiredMultipart removes every multipart upload whose last_modified
// is strictly before beforeTS (RFC-3339 UTC string comparison).
func DeleteExpiredMultipart(ctx context.Context, conn *sql.Conn, beforeTS string) error {
	_, err := conn.ExecContext(ctx, `DELETE FROM multipart_upload WHERE last_modified < ?`, beforeTS)
	if err != nil {
		return fmt.Errorf("bucket: delete expired multipart: %w", err)
	}
	return nil
}
