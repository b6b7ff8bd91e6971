// Package index persists the two tables SEAL needs outside any one shard's
// ORAM: the token-to-record lookup (field_token -> record_id, shard_id) and
// the record locator (record_id -> shard_id, shard_local_id) that resolves a
// global record id to the PathORAM block that holds it. Neither table is
// itself oblivious; spec.md treats index-side metadata as visible to the
// server, only payload bytes are protected by ShardedORAM.
package index

import (
	"context"
	"database/sql"
	"encoding/hex"
	stderrors "errors"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	field_token TEXT NOT NULL,
	record_id   INTEGER NOT NULL,
	shard_id    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokens_field_token ON tokens(field_token);

CREATE TABLE IF NOT EXISTS records (
	record_id      INTEGER PRIMARY KEY,
	shard_id       INTEGER NOT NULL,
	shard_local_id INTEGER NOT NULL
);
`

// Index wraps the sqlite-backed metadata store.
type Index struct {
	db *sql.DB
}

// Open creates (or reopens) the index at dsn. Use ":memory:" for an
// ephemeral, process-local index, or a file path to persist across restarts.
func Open(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "index: open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "index: create schema")
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// PutRecord records where recordID lives: shardID identifies the
// ShardedORAM shard, shardLocalID the dense block id within that shard's
// PathORAM tree.
func (idx *Index) PutRecord(ctx context.Context, recordID int64, shardID, shardLocalID int) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO records (record_id, shard_id, shard_local_id) VALUES (?, ?, ?)`,
		recordID, shardID, shardLocalID,
	)
	if err != nil {
		return errors.Wrapf(err, "index: put record %d", recordID)
	}
	return nil
}

// Locate resolves recordID to its shard and shard-local block id. ok is
// false if recordID was never inserted.
func (idx *Index) Locate(ctx context.Context, recordID int64) (shardID, shardLocalID int, ok bool, err error) {
	row := idx.db.QueryRowContext(ctx,
		`SELECT shard_id, shard_local_id FROM records WHERE record_id = ?`, recordID,
	)
	err = row.Scan(&shardID, &shardLocalID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, errors.Wrapf(err, "index: locate record %d", recordID)
	}
	return shardID, shardLocalID, true, nil
}

// Append associates fieldToken (a deterministic token.Token output) with
// recordID, which lives on shardID. One record may have many tokens (one per
// indexed field/value pair). No update or delete is provided: the index is
// append-only, matching spec.md's Non-goal on durable mutation of ORAM state.
func (idx *Index) Append(ctx context.Context, fieldToken []byte, recordID int64, shardID int) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO tokens (field_token, record_id, shard_id) VALUES (?, ?, ?)`,
		hex.EncodeToString(fieldToken), recordID, shardID,
	)
	if err != nil {
		return errors.Wrapf(err, "index: append token for record %d", recordID)
	}
	return nil
}

// Row is one (record, shard) pair matching a Lookup.
type Row struct {
	RecordID int64
	ShardID  int
}

// Lookup returns every (record id, shard id) pair ever associated with
// fieldToken, in insertion order. The caller (seal.Query) is responsible for
// padding the result count; Lookup itself returns exactly the true matches.
func (idx *Index) Lookup(ctx context.Context, fieldToken []byte) ([]Row, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT record_id, shard_id FROM tokens WHERE field_token = ? ORDER BY rowid`,
		hex.EncodeToString(fieldToken),
	)
	if err != nil {
		return nil, errors.Wrap(err, "index: lookup token")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RecordID, &r.ShardID); err != nil {
			return nil, errors.Wrap(err, "index: scan lookup row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "index: iterate lookup rows")
	}
	return out, nil
}
