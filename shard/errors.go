package shard

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidConfig is returned when Config.Alpha is negative.
	ErrInvalidConfig = errors.New("shard: invalid configuration")

	// ErrInvalidShard is returned when a shard id falls outside [0, ShardCount()).
	ErrInvalidShard = errors.New("shard: shard id out of range")
)

func shardLabel(shardID int) string {
	return strconv.Itoa(shardID)
}
