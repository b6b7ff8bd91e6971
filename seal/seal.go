// Package seal implements the SEAL coordinator: it ties together a sharded
// Path ORAM payload store, a deterministic-token search index, and
// result-cardinality padding into the Insert/Retrieve/Query surface a caller
// actually wants.
package seal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/etclab/pathoram-go/index"
	"github.com/etclab/pathoram-go/pad"
	"github.com/etclab/pathoram-go/pathoram"
	"github.com/etclab/pathoram-go/shard"
	"github.com/etclab/pathoram-go/token"
)

// Config holds coordinator-wide parameters. Zero values are replaced with
// the reference defaults (N=10, Z=4, Alpha=2, X=2) by Validate.
type Config struct {
	N int // per-shard PathORAM capacity
	Z int // bucket size

	// Alpha is the shard-leakage exponent; ShardCount == 2^Alpha. A nil
	// Alpha is unset and defaults to 2. Alpha is a pointer rather than a
	// plain int specifically so that a caller requesting a single shard
	// (Alpha pointing at 0) is distinguishable from a caller who left the
	// field unset: 0 is a valid exponent, not just the Go zero value.
	Alpha *int
	X     int // padding base; query result counts round up to a power of X

	StashLimit       int
	EvictionStrategy pathoram.EvictionStrategy
	ConstantTime     bool

	// MasterSecret seeds token.Deriver (deterministic-token key, shard PRP
	// key, per-shard AEAD keys). Must be at least 32 bytes.
	MasterSecret []byte

	// IndexDSN is the sqlite data source for the search index.
	// ":memory:" is the default.
	IndexDSN string

	Logger *zap.Logger
}

// Validate applies defaults and rejects out-of-range parameters, returning a
// normalized copy.
func (c Config) Validate() (Config, error) {
	if c.N == 0 {
		c.N = 10
	}
	if c.Z == 0 {
		c.Z = 4
	}
	if c.Alpha == nil {
		def := 2
		c.Alpha = &def
	}
	if c.X == 0 {
		c.X = 2
	}
	if c.X < 2 {
		return c, errors.New("seal: Config.X must be >= 2")
	}
	if *c.Alpha < 0 {
		return c, errors.New("seal: Config.Alpha must be >= 0")
	}
	if c.IndexDSN == "" {
		c.IndexDSN = ":memory:"
	}
	return c, nil
}

// Coordinator is the entry point: Insert a record, Retrieve it by id, or
// Query it by an indexed field/value pair.
type Coordinator struct {
	cfg    Config
	schema Schema
	oram   *shard.ShardedORAM
	idx    *index.Index
	keys   *token.Deriver
	logger *zap.Logger

	mu        sync.Mutex // guards nextID and per-shard local-id counters
	nextID    int64
	localNext []int // shard-local next dense block id, one per shard
}

// New builds a Coordinator for the given schema. cfg.MasterSecret seeds all
// derived keys; the caller owns its lifetime and should zero it after New
// returns if long-term secrecy matters.
func New(cfg Config, schema Schema) (*Coordinator, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	deriver, err := token.NewDeriver(cfg.MasterSecret)
	if err != nil {
		return nil, errors.Wrap(err, "seal: derive keys")
	}

	oram, err := shard.New(shard.Config{
		Alpha:            *cfg.Alpha,
		NumBlocks:        cfg.N,
		BlockSize:        blockSizeFor(schema),
		BucketSize:       cfg.Z,
		StashLimit:       cfg.StashLimit,
		EvictionStrategy: cfg.EvictionStrategy,
		ConstantTime:     cfg.ConstantTime,
	}, deriver, nil, cfg.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "seal: build sharded ORAM")
	}

	idx, err := index.Open(cfg.IndexDSN)
	if err != nil {
		return nil, errors.Wrap(err, "seal: open index")
	}

	return &Coordinator{
		cfg:    cfg,
		schema: schema,
		oram:   oram,
		idx:    idx,
		keys:   deriver,
		logger: cfg.Logger,

		// Record ids start at 1; 0 is never assigned.
		nextID:    1,
		localNext: make([]int, oram.ShardCount()),
	}, nil
}

// Close releases the index's database handle. The in-memory ORAM state has
// no persisted resource to release.
func (c *Coordinator) Close() error {
	return c.idx.Close()
}

// recordValueBudget bounds the total UTF-8 byte length of a Record's values,
// so every shard's PathORAM can use one fixed BlockSize (fixed ciphertext
// length is itself a leakage requirement: a variable-length payload would
// leak record size through its ciphertext length). 4KiB comfortably covers
// the arrest-record reference schema in spec.md §6.
const recordValueBudget = 4096

func (c *Coordinator) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return zap.NewNop()
}

// Insert encodes r under the Coordinator's schema, assigns it a shard and a
// fresh record id, writes the encrypted payload into that shard's PathORAM,
// and appends one index row per field named in searchable.
func (c *Coordinator) Insert(ctx context.Context, r Record, searchable []string) (int64, error) {
	payload, err := encode(c.schema, r)
	if err != nil {
		return 0, err
	}
	if len(payload) > blockSizeFor(c.schema) {
		return 0, errors.New("seal: record exceeds configured size budget")
	}

	c.mu.Lock()
	recordID := c.nextID
	shardID := c.oram.ShardOf(recordID)
	if c.localNext[shardID] >= c.cfg.N {
		c.mu.Unlock()
		return 0, ErrCapacityExceeded
	}
	shardLocalID := c.localNext[shardID]
	c.localNext[shardID]++
	c.nextID++
	c.mu.Unlock()

	block := make([]byte, blockSizeFor(c.schema))
	copy(block, payload)

	if _, err := c.oram.Access(shardID, shardLocalID, block); err != nil {
		return 0, classifyORAMError(err)
	}

	if err := c.idx.PutRecord(ctx, recordID, shardID, shardLocalID); err != nil {
		return 0, err
	}

	for _, field := range searchable {
		value, ok := r[field]
		if !ok {
			if _, known := c.schema.index(field); !known {
				return 0, errors.Wrapf(ErrUnknownField, "field %q", field)
			}
			value = ""
		}
		tok := token.Token(c.keys.TokenKey(), field, value)
		if err := c.idx.Append(ctx, tok, recordID, shardID); err != nil {
			return 0, err
		}
	}

	c.log().Debug("seal insert",
		zap.Int64("record_id", recordID),
		zap.Int("shard_id", shardID),
	)
	return recordID, nil
}

// Retrieve reads the record addressed by recordID. Returns nil, nil if
// recordID was never inserted.
func (c *Coordinator) Retrieve(ctx context.Context, recordID int64) (Record, error) {
	shardID, shardLocalID, ok, err := c.idx.Locate(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	block, err := c.oram.Access(shardID, shardLocalID, nil)
	if err != nil {
		return nil, classifyORAMError(err)
	}

	r, err := decode(c.schema, block)
	if err != nil {
		return nil, err
	}

	c.log().Debug("seal retrieve",
		zap.Int64("record_id", recordID),
		zap.Int("shard_id", shardID),
	)
	return r, nil
}

// Result is one entry in a Query response: either a real record with its id,
// or a dummy padding slot.
type Result struct {
	RecordID int64
	Record   Record
	Dummy    bool
}

// Query returns every record whose field equals value, padded up to the next
// power of Config.X so the caller never observes the true match count
// directly (unless it already is that power).
func (c *Coordinator) Query(ctx context.Context, field, value string) ([]Result, error) {
	if _, ok := c.schema.index(field); !ok {
		return nil, errors.Wrapf(ErrUnknownField, "field %q", field)
	}

	tok := token.Token(c.keys.TokenKey(), field, value)
	rows, err := c.idx.Lookup(ctx, tok)
	if err != nil {
		return nil, err
	}

	slots := pad.Records(rows, c.cfg.X)
	out := make([]Result, len(slots))
	for i, slot := range slots {
		if slot.Dummy {
			out[i] = Result{Dummy: true}
			continue
		}

		_, shardLocalID, ok, err := c.idx.Locate(ctx, slot.Value.RecordID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Errorf("seal: index row for record %d has no locator", slot.Value.RecordID)
		}

		block, err := c.oram.Access(slot.Value.ShardID, shardLocalID, nil)
		if err != nil {
			return nil, classifyORAMError(err)
		}
		r, err := decode(c.schema, block)
		if err != nil {
			return nil, err
		}
		out[i] = Result{RecordID: slot.Value.RecordID, Record: r}
	}

	c.log().Debug("seal query",
		zap.String("field", field),
		zap.Int("result_count", len(out)),
	)
	return out, nil
}

func blockSizeFor(schema Schema) int {
	return 4*len(schema) + recordValueBudget
}
