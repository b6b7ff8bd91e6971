// Package shard implements ShardedORAM: an array of 2^alpha independent
// pathoram.PathORAM instances behind a keyed PRP router. Splitting one large
// ORAM into shards bounds the per-access path length to log(N/2^alpha)
// instead of log(N), at the cost of leaking which shard an access touched.
package shard

import (
	"sync"

	"go.uber.org/zap"

	"github.com/etclab/pathoram-go/internal/telemetry"
	"github.com/etclab/pathoram-go/pathoram"
	"github.com/etclab/pathoram-go/token"
)

// Config describes the parameters shared by every shard's PathORAM. Each
// shard gets its own tree sized for NumBlocks records; the shard count
// itself is 2^Alpha.
type Config struct {
	Alpha            int // ShardCount() == 1 << Alpha
	NumBlocks        int // per-shard capacity
	BlockSize        int // plaintext record size, in bytes
	BucketSize       int
	StashLimit       int
	EvictionStrategy pathoram.EvictionStrategy
	ConstantTime     bool

	// PosMapFactory builds the position map for each shard's PathORAM.
	// Defaults to pathoram.NewInMemoryPositionMap. A recursive-ORAM position
	// map (spec.md §9's recursion hook) can be plugged in here without
	// touching the rest of ShardedORAM.
	PosMapFactory func() pathoram.PositionMap
}

// ShardCount returns 2^Alpha, the number of independent PathORAM instances.
func (c Config) ShardCount() int {
	return 1 << uint(c.Alpha)
}

func (c Config) oramConfig() pathoram.Config {
	return pathoram.Config{
		NumBlocks:        c.NumBlocks,
		BlockSize:        c.BlockSize,
		BucketSize:       c.BucketSize,
		StashLimit:       c.StashLimit,
		EvictionStrategy: c.EvictionStrategy,
		ConstantTime:     c.ConstantTime,
	}
}

// ShardedORAM routes record accesses to one of several independent PathORAM
// trees by a keyed PRP over the record id, and serializes access to each
// shard with its own mutex so distinct shards can proceed concurrently.
type ShardedORAM struct {
	cfg     Config
	oram    []*pathoram.PathORAM
	mu      []sync.Mutex
	prpKey  []byte
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// New builds a ShardedORAM with 2^cfg.Alpha PathORAM instances, each using
// an AES-GCM encryptor keyed from deriver.ShardAEADKey(shardID), and shard
// assignment keyed from deriver.ShardPRPKey(). metrics and logger are
// optional; pass nil to disable telemetry for either.
func New(cfg Config, deriver *token.Deriver, metrics *telemetry.Metrics, logger *zap.Logger) (*ShardedORAM, error) {
	if cfg.Alpha < 0 {
		return nil, ErrInvalidConfig
	}
	shardCount := cfg.ShardCount()

	s := &ShardedORAM{
		cfg:     cfg,
		oram:    make([]*pathoram.PathORAM, shardCount),
		mu:      make([]sync.Mutex, shardCount),
		prpKey:  deriver.ShardPRPKey(),
		metrics: metrics,
		logger:  logger,
	}

	oramCfg, err := cfg.oramConfig().Validate()
	if err != nil {
		return nil, err
	}

	for i := 0; i < shardCount; i++ {
		enc, err := pathoram.NewAESGCMEncryptor(deriver.ShardAEADKey(i))
		if err != nil {
			return nil, err
		}

		_, _, totalBuckets := oramCfg.ComputeTreeParams()
		storage := pathoram.NewInMemoryStorage(totalBuckets, oramCfg.BucketSize, oramCfg.BlockSize)

		var posMap pathoram.PositionMap
		if cfg.PosMapFactory != nil {
			posMap = cfg.PosMapFactory()
		} else {
			posMap = pathoram.NewInMemoryPositionMap()
		}

		o, err := pathoram.New(oramCfg, storage, posMap, enc)
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			o.SetMetrics(telemetry.NewStashObserver(metrics, i))
		}
		s.oram[i] = o
	}

	return s, nil
}

// ShardCount returns the number of shards this instance was built with.
func (s *ShardedORAM) ShardCount() int {
	return len(s.oram)
}

// ShardOf returns the shard a record id is assigned to. Stable for a given
// recordID and key: the same record always maps to the same shard.
func (s *ShardedORAM) ShardOf(recordID int64) int {
	return token.ShardOf(s.prpKey, recordID, len(s.oram))
}

// Access performs an oblivious read (newData == nil) or write on blockID
// within shardID, serialized against other accesses to the same shard.
// Accesses to distinct shards may run concurrently.
func (s *ShardedORAM) Access(shardID, blockID int, newData []byte) ([]byte, error) {
	if shardID < 0 || shardID >= len(s.oram) {
		return nil, ErrInvalidShard
	}

	s.mu[shardID].Lock()
	defer s.mu[shardID].Unlock()

	result, err := s.oram[shardID].Access(blockID, newData)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("shard access failed",
				zap.Int("shard", shardID), zap.Int("block", blockID), zap.Error(err))
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Accesses.WithLabelValues(shardLabel(shardID)).Inc()
	}
	return result, nil
}

// Capacity returns the per-shard record capacity (cfg.NumBlocks).
func (s *ShardedORAM) Capacity() int {
	return s.cfg.NumBlocks
}

// ShardSize returns the number of blocks currently allocated in shardID.
func (s *ShardedORAM) ShardSize(shardID int) (int, error) {
	if shardID < 0 || shardID >= len(s.oram) {
		return 0, ErrInvalidShard
	}
	s.mu[shardID].Lock()
	defer s.mu[shardID].Unlock()
	return s.oram[shardID].Size(), nil
}
