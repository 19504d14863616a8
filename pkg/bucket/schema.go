// Package bucket implements the schema and query layer that runs inside
// pool-submitted closures against one bucket's SQLite database file.
package bucket

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned by single-row lookups when no matching row exists.
var ErrNotFound = errors.New("bucket: not found")

// schemaDDL creates the four tables described by the data model, in
// dependency order so the foreign keys can be declared inline.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS data (
	key   TEXT PRIMARY KEY,
	value BLOB
);

CREATE TABLE IF NOT EXISTS metadata (
	key           TEXT PRIMARY KEY REFERENCES data(key) ON DELETE CASCADE,
	size          INTEGER NOT NULL,
	metadata      TEXT,
	last_modified TEXT NOT NULL,
	md5           TEXT
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS multipart_upload (
	upload_id     TEXT NOT NULL,
	bucket        TEXT NOT NULL,
	key           TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	access_key    TEXT,
	PRIMARY KEY (upload_id),
	UNIQUE (upload_id, bucket, key)
);

CREATE TABLE IF NOT EXISTS multipart_upload_part (
	upload_id     TEXT NOT NULL REFERENCES multipart_upload(upload_id) ON DELETE CASCADE,
	part_number   INTEGER NOT NULL,
	last_modified TEXT NOT NULL,
	value         BLOB,
	size          INTEGER NOT NULL,
	md5           TEXT,
	PRIMARY KEY (upload_id, part_number)
) WITHOUT ROWID;
`

// CreateSchema creates the four bucket tables if they do not already exist.
// Safe to call on every bucket open since every statement is idempotent.
func CreateSchema(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, schemaDDL)
	return err
}
